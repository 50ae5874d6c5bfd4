package mcp

var ToGenaiSchema = toGenaiSchema
