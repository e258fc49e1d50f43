// Package resolve substitutes ${path} expressions in step parameters and
// evaluates step guard conditions against an execution context.
package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ottoflow/otto/pkg/execution"
	"github.com/ottoflow/otto/pkg/jsontree"
)

// UnresolvedVariableError reports a ${path} reference that does not exist in
// the execution context.
type UnresolvedVariableError struct {
	Step string
	Path string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("step %q references unresolved variable %q", e.Step, e.Path)
}

var tokenPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.-]*)\}`)

// Params walks a step's parameter tree and substitutes every ${path}
// expression. A string leaf that is exactly one token is replaced by the
// referenced value with its JSON type preserved; tokens embedded in a larger
// string are stringified and concatenated. Resolution is pure: the context
// is only read, and identical inputs always produce identical output.
func Params(step string, params jsontree.Value, ctx *execution.Context) (jsontree.Value, error) {
	switch params.Kind() {
	case jsontree.KindString:
		return resolveString(step, params.StringValue(), ctx)
	case jsontree.KindArray:
		items := make([]jsontree.Value, 0, len(params.Items()))

		for _, item := range params.Items() {
			resolved, err := Params(step, item, ctx)
			if err != nil {
				return jsontree.Null(), err
			}

			items = append(items, resolved)
		}

		return jsontree.Array(items...), nil
	case jsontree.KindObject:
		fields := make(map[string]jsontree.Value, len(params.Fields()))

		for name, item := range params.Fields() {
			resolved, err := Params(step, item, ctx)
			if err != nil {
				return jsontree.Null(), err
			}

			fields[name] = resolved
		}

		return jsontree.Object(fields), nil
	default:
		return params, nil
	}
}

func resolveString(step, raw string, ctx *execution.Context) (jsontree.Value, error) {
	if path, ok := wholeToken(raw); ok {
		value, found := ctx.Get(path)
		if !found {
			return jsontree.Null(), &UnresolvedVariableError{Step: step, Path: path}
		}

		return value.Clone(), nil
	}

	var resolveErr error

	replaced := tokenPattern.ReplaceAllStringFunc(raw, func(token string) string {
		path := tokenPattern.FindStringSubmatch(token)[1]

		value, found := ctx.Get(path)
		if !found {
			if resolveErr == nil {
				resolveErr = &UnresolvedVariableError{Step: step, Path: path}
			}

			return ""
		}

		return value.Stringify()
	})

	if resolveErr != nil {
		return jsontree.Null(), resolveErr
	}

	return jsontree.String(replaced), nil
}

// wholeToken reports whether the string is exactly one ${path} expression
// and returns its path.
func wholeToken(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)

	match := tokenPattern.FindStringSubmatch(trimmed)
	if match == nil || match[0] != trimmed {
		return "", false
	}

	return match[1], true
}
