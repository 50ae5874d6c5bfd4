package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/ghost/pkg/policy"
	"github.com/m-mizutani/gt"
)

const denySecrets = `package ghost.memory

deny contains msg if {
	regex.match("(?i)password|passcode", input.text)
	msg := "looks like a secret"
}

deny contains msg if {
	regex.match("[0-9]{4}[ -]?[0-9]{4}[ -]?[0-9]{4}[ -]?[0-9]{4}", input.text)
	msg := "looks like a card number"
}
`

func TestAdmissionDeny(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.rego"), []byte(denySecrets), 0o644))

	ctx := context.Background()
	p, err := policy.New(ctx, dir)
	gt.NoError(t, err)
	gt.True(t, p.Enabled())

	ok, reasons, err := p.Admit(ctx, "I live in Haifa")
	gt.NoError(t, err)
	gt.True(t, ok)
	gt.A(t, reasons).Length(0)

	ok, reasons, err = p.Admit(ctx, "My password is hunter2")
	gt.NoError(t, err)
	gt.False(t, ok)
	gt.Equal(t, reasons, []string{"looks like a secret"})

	ok, reasons, err = p.Admit(ctx, "My card 1234 5678 9012 3456, password 1")
	gt.NoError(t, err)
	gt.False(t, ok)
	gt.Equal(t, reasons, []string{"looks like a card number", "looks like a secret"})
}

func TestAdmissionWithoutPolicy(t *testing.T) {
	ctx := context.Background()

	for _, dir := range []string{"", t.TempDir()} {
		p, err := policy.New(ctx, dir)
		gt.NoError(t, err)
		gt.False(t, p.Enabled())

		ok, _, err := p.Admit(ctx, "anything goes")
		gt.NoError(t, err)
		gt.True(t, ok)
	}
}

func TestAdmissionBrokenPolicy(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "bad.rego"), []byte("package ghost.memory\n\ndeny contains"), 0o644))

	_, err := policy.New(context.Background(), dir)
	gt.Error(t, err)
}
