// Package execution owns the mutable state visited during one workflow execution.
package execution

import (
	"strings"

	"github.com/ottoflow/otto/pkg/jsontree"
)

// Namespace roots visible to variable resolution.
const (
	NamespaceInput     = "input"
	NamespaceRepo      = "repo"
	NamespaceVariables = "variables"
)

// Context holds the three state namespaces of one execution: input and repo
// are read-only after construction, variables accumulates step outputs. A
// Context is exclusively owned by its execution's orchestrator and must
// never be shared across executions.
type Context struct {
	input     jsontree.Value
	repo      jsontree.Value
	variables map[string]jsontree.Value
}

// NewContext builds a context from the invocation input and repository
// metadata. Both are deep-copied in so later mutations of the caller's
// trees cannot leak into the execution.
func NewContext(input, repo jsontree.Value) *Context {
	return &Context{
		input:     input.Clone(),
		repo:      repo.Clone(),
		variables: make(map[string]jsontree.Value),
	}
}

// Get resolves a dotted path such as "input.ref" or "variables.build.id".
func (c *Context) Get(path string) (jsontree.Value, bool) {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || segments[0] == "" {
		return jsontree.Null(), false
	}

	var current jsontree.Value

	switch segments[0] {
	case NamespaceInput:
		current = c.input
	case NamespaceRepo:
		current = c.repo
	case NamespaceVariables:
		if len(segments) < 2 {
			return c.variablesValue(), true
		}

		stored, ok := c.variables[segments[1]]
		if !ok {
			return jsontree.Null(), false
		}

		return descend(stored, segments[2:])
	default:
		return jsontree.Null(), false
	}

	return descend(current, segments[1:])
}

func descend(value jsontree.Value, segments []string) (jsontree.Value, bool) {
	current := value

	for _, segment := range segments {
		next, ok := current.Field(segment)
		if !ok {
			return jsontree.Null(), false
		}

		current = next
	}

	return current, true
}

// Set writes a variable. The value is deep-copied in so the write is
// all-or-nothing and never aliases the caller's tree.
func (c *Context) Set(name string, value jsontree.Value) {
	c.variables[name] = value.Clone()
}

// Variables returns the variables namespace as a detached object value.
func (c *Context) Variables() jsontree.Value {
	return c.variablesValue().Clone()
}

func (c *Context) variablesValue() jsontree.Value {
	fields := make(map[string]jsontree.Value, len(c.variables))
	for name, value := range c.variables {
		fields[name] = value
	}

	return jsontree.Object(fields)
}

// Snapshot returns a detached deep copy of all three namespaces, safe to
// hand to the persistence layer while the execution keeps mutating.
func (c *Context) Snapshot() jsontree.Value {
	return jsontree.Object(map[string]jsontree.Value{
		NamespaceInput:     c.input.Clone(),
		NamespaceRepo:      c.repo.Clone(),
		NamespaceVariables: c.Variables(),
	})
}
