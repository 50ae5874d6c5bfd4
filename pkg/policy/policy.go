package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

// DenyQuery is evaluated with input {"text": <candidate fact>}. Each element
// of the resulting set is a reason to refuse the fact.
const DenyQuery = "data.ghost.memory.deny"

// Admission decides whether a candidate fact may enter the store
type Admission struct {
	query *rego.PreparedEvalQuery
	files []string
}

// New loads every *.rego file in dir. An empty dir, or one without policy
// files, yields an Admission that accepts everything.
func New(ctx context.Context, dir string) (*Admission, error) {
	if dir == "" {
		return &Admission{}, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}
	if len(files) == 0 {
		logging.From(ctx).Debug("no admission policy found", "dir", dir)
		return &Admission{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query(DenyQuery))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare admission policy", goerr.V("dir", dir))
	}

	logging.From(ctx).Debug("admission policy loaded", "files", files)
	return &Admission{query: &prepared, files: files}, nil
}

// Enabled reports whether any policy module was loaded
func (x *Admission) Enabled() bool {
	return x.query != nil
}

// Admit evaluates the policy for fact and returns the deny reasons, sorted
func (x *Admission) Admit(ctx context.Context, fact string) (bool, []string, error) {
	if x.query == nil {
		return true, nil, nil
	}

	input := map[string]any{"text": fact}
	rs, err := x.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, nil, goerr.Wrap(err, "failed to evaluate admission policy", goerr.V("files", x.files))
	}

	var reasons []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			items, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				if s, ok := item.(string); ok {
					reasons = append(reasons, s)
				} else {
					reasons = append(reasons, fmt.Sprint(item))
				}
			}
		}
	}

	sort.Strings(reasons)
	return len(reasons) == 0, reasons, nil
}
