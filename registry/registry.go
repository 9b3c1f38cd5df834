// Package registry is the table of operations the service exposes: each
// entry names a capability, describes its form parameters and says
// whether it produces one file or a directory of files.
package registry

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Resolve for ids not in the table.
var ErrUnknownTool = errors.New("registry: unknown tool")

// Arity says how many artifacts an operation produces.
type Arity int

const (
	Single Arity = iota
	Multi
)

func (a Arity) String() string {
	if a == Multi {
		return "multi"
	}
	return "single"
}

// MarshalText renders the arity in catalog JSON.
func (a Arity) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Input is what a capability receives: the persisted upload paths in
// upload order, the output target (a file path for Single, an existing
// empty directory for Multi) and the coerced parameters.
type Input struct {
	Paths  []string
	Target string
	Params Params
}

// Output describes the artifacts a capability produced.
type Output struct {
	// Filename is the base name of the single output file.
	Filename string
	// Files lists the names written into a Multi target directory.
	Files []string
	// Extra carries tool-specific response fields.
	Extra map[string]any
}

// Capability performs one operation.
type Capability func(ctx context.Context, in Input) (Output, error)

// OperationSpec is one row of the table.
type OperationSpec struct {
	ID          string
	Title       string
	Name        string // short name shown in the catalog
	Description string
	Summary     string // one-line catalog description
	Accept      string // comma separated extensions for the file picker
	Multiple    bool
	Icon        string
	Color       string
	Arity       Arity
	Params      []ParamSpec
	// OutputName is the display name of a Single output, used to derive
	// the stored file name.
	OutputName string
	Run        Capability

	schema *paramSchema
}

// Registry is immutable after New.
type Registry struct {
	order []string
	specs map[string]*OperationSpec
}

// New validates the table and compiles every parameter schema.
func New(specs ...OperationSpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]*OperationSpec, len(specs))}
	for i := range specs {
		s := specs[i]
		if s.ID == "" {
			return nil, fmt.Errorf("registry: entry %d has no id", i)
		}
		if _, dup := r.specs[s.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate id %q", s.ID)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("registry: %s: no capability", s.ID)
		}
		if s.Arity == Single && s.OutputName == "" {
			return nil, fmt.Errorf("registry: %s: single output needs a name", s.ID)
		}
		schema, err := compileSchema(s.Params)
		if err != nil {
			return nil, fmt.Errorf("registry: %s: %w", s.ID, err)
		}
		s.schema = schema
		r.specs[s.ID] = &s
		r.order = append(r.order, s.ID)
	}
	return r, nil
}

// Resolve looks up an operation by id.
func (r *Registry) Resolve(id string) (OperationSpec, error) {
	s, ok := r.specs[id]
	if !ok {
		return OperationSpec{}, fmt.Errorf("%w: %q", ErrUnknownTool, id)
	}
	return *s, nil
}

// Catalog lists the operations in declaration order.
func (r *Registry) Catalog() []OperationSpec {
	out := make([]OperationSpec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.specs[id])
	}
	return out
}

// Len returns the number of operations.
func (r *Registry) Len() int { return len(r.order) }
