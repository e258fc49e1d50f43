package resolve

import (
	"strconv"
	"strings"

	"github.com/ottoflow/otto/pkg/execution"
	"github.com/ottoflow/otto/pkg/jsontree"
)

// Condition evaluates a step's optional guard expression. The grammar is
// deliberately small: a ${dotted.path} reference, a literal primitive, or a
// string with embedded references. Falsy values are the empty string, false,
// null, a missing path and numeric zero; everything else is truthy. A
// missing path never fails the step, it evaluates to falsy.
//
// Comparison and boolean operators are an extension point, not implemented.
func Condition(expr string, ctx *execution.Context) bool {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		// No guard declared, the step runs.
		return true
	}

	if path, ok := wholeToken(trimmed); ok {
		value, found := ctx.Get(path)
		if !found {
			return false
		}

		return truthy(value)
	}

	if tokenPattern.MatchString(trimmed) {
		interpolated := tokenPattern.ReplaceAllStringFunc(trimmed, func(token string) string {
			path := tokenPattern.FindStringSubmatch(token)[1]

			value, found := ctx.Get(path)
			if !found {
				return ""
			}

			return value.Stringify()
		})

		return truthy(parseLiteral(interpolated))
	}

	return truthy(parseLiteral(trimmed))
}

// parseLiteral interprets a bare condition string as a JSON-ish primitive:
// booleans, null and numbers get their typed form, anything else stays a
// string.
func parseLiteral(raw string) jsontree.Value {
	trimmed := strings.TrimSpace(raw)

	switch trimmed {
	case "":
		return jsontree.String("")
	case "null":
		return jsontree.Null()
	case "true":
		return jsontree.Bool(true)
	case "false":
		return jsontree.Bool(false)
	}

	if number, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return jsontree.Number(number)
	}

	return jsontree.String(trimmed)
}

func truthy(value jsontree.Value) bool {
	switch value.Kind() {
	case jsontree.KindNull:
		return false
	case jsontree.KindBool:
		return value.BoolValue()
	case jsontree.KindNumber:
		return value.NumberValue() != 0
	case jsontree.KindString:
		return value.StringValue() != ""
	default:
		// Arrays and objects are always truthy, even empty ones.
		return true
	}
}
