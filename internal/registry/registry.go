package registry

import (
	"fmt"
	"sort"
)

// Shape declares the cardinality of an operation's result.
type Shape string

const (
	// ShapeMany returns all matching rows.
	ShapeMany Shape = "many"
	// ShapeOne returns the first row, or absent.
	ShapeOne Shape = "one"
	// ShapeScalar returns the single column of the single row, or absent.
	ShapeScalar Shape = "scalar"
	// ShapeWrite returns the inserted row id and affected row count.
	ShapeWrite Shape = "write"
)

// Args is a caller-supplied argument bag, mapping parameter name to
// value. It is transient: it exists only for one Execute call.
type Args map[string]any

// Validator approves or rejects an argument bag before execution is
// attempted.
type Validator func(Args) bool

// Operation is one immutable catalog entry.
type Operation struct {
	Domain    string
	Name      string
	Statement string
	// Params lists the argument names in the order the statement's
	// positional placeholders consume them. Its length must equal the
	// statement's placeholder count; New enforces this.
	Params   []string
	Shape    Shape
	Validate Validator
}

// Key returns the two-level catalog key, "domain.name".
func (o Operation) Key() string {
	return o.Domain + "." + o.Name
}

// Registry is the closed catalog of operations. Read-only after New.
type Registry struct {
	ops map[string]Operation
}

// New builds a registry from catalog entries, checking the build-time
// invariants: unique keys, non-nil validators, a known shape, and
// placeholder/parameter parity for every statement.
func New(entries []Operation) (*Registry, error) {
	ops := make(map[string]Operation, len(entries))
	for _, op := range entries {
		key := op.Key()
		if op.Domain == "" || op.Name == "" {
			return nil, fmt.Errorf("catalog entry %q: domain and name are required", key)
		}
		if _, exists := ops[key]; exists {
			return nil, fmt.Errorf("catalog entry %q: duplicate key", key)
		}
		if op.Validate == nil {
			return nil, fmt.Errorf("catalog entry %q: validator is required", key)
		}
		switch op.Shape {
		case ShapeMany, ShapeOne, ShapeScalar, ShapeWrite:
		default:
			return nil, fmt.Errorf("catalog entry %q: unknown shape %q", key, op.Shape)
		}
		if got, want := countPlaceholders(op.Statement), len(op.Params); got != want {
			return nil, fmt.Errorf("catalog entry %q: statement has %d placeholders but %d parameters are declared", key, got, want)
		}
		ops[key] = op
	}
	return &Registry{ops: ops}, nil
}

// MustNew is New for build-time catalogs, where an invalid entry is a
// programming error.
func MustNew(entries []Operation) *Registry {
	r, err := New(entries)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the operation for (domain, name).
func (r *Registry) Lookup(domain, name string) (Operation, bool) {
	op, ok := r.ops[domain+"."+name]
	return op, ok
}

// Operations returns every catalog entry, sorted by key for
// deterministic listings.
func (r *Registry) Operations() []Operation {
	out := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// countPlaceholders counts positional '?' placeholders in a statement,
// ignoring question marks inside single-quoted SQL string literals.
func countPlaceholders(stmt string) int {
	count := 0
	inString := false
	for i := 0; i < len(stmt); i++ {
		switch stmt[i] {
		case '\'':
			inString = !inString
		case '?':
			if !inString {
				count++
			}
		}
	}
	return count
}
