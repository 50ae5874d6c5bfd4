package repository

// SetRename replaces the rename step of SaveFacts to simulate a crash
func (x *File) SetRename(fn func(oldpath, newpath string) error) {
	x.rename = fn
}
