package dryrun

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Verdict is the three-valued outcome of predicate evaluation.
type Verdict int

const (
	// Unknown means the predicate shape is unsupported or references
	// values we do not have, so both branches must be explored.
	Unknown Verdict = iota
	True
	False
)

func (v Verdict) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

var (
	nullCheckRe  = regexp.MustCompile(`(?i)^\s*(@\w+)\s+IS\s+(NOT\s+)?NULL\s*$`)
	comparisonRe = regexp.MustCompile(`(?i)^\s*(@\w+)\s*(=|<>|!=|<=|>=|<|>)\s*('(?:[^']|'')*'|-?\d+(?:\.\d+)?)\s*$`)
)

// Evaluate decides a branch condition against the supplied parameter
// values. Only two shapes are decidable: "@P IS [NOT] NULL" and
// "@P <op> literal". Anything else is Unknown, as is any comparison
// against a missing or NULL parameter.
func Evaluate(condition string, params map[string]any) Verdict {
	if m := nullCheckRe.FindStringSubmatch(condition); m != nil {
		value, ok := lookup(params, m[1])
		if !ok {
			return Unknown
		}
		isNull := value == nil
		if m[2] != "" {
			if isNull {
				return False
			}
			return True
		}
		if isNull {
			return True
		}
		return False
	}

	if m := comparisonRe.FindStringSubmatch(condition); m != nil {
		value, ok := lookup(params, m[1])
		if !ok || value == nil {
			return Unknown
		}
		return compare(value, m[2], m[3])
	}

	return Unknown
}

// lookup resolves a parameter reference case-insensitively, with or
// without the leading @.
func lookup(params map[string]any, name string) (any, bool) {
	bare := strings.TrimPrefix(name, "@")
	for key, value := range params {
		if strings.EqualFold(strings.TrimPrefix(key, "@"), bare) {
			return value, true
		}
	}
	return nil, false
}

// compare applies op between a parameter value and a literal. Numeric
// comparison is attempted first; a quoted literal falls back to a
// case-insensitive string comparison, while a numeric literal against
// a non-numeric value stays undecided.
func compare(value any, op, literal string) Verdict {
	quoted := strings.HasPrefix(literal, "'")
	left, leftOK := toDecimal(value)
	right, rightOK := toDecimalString(unquote(literal))

	if leftOK && rightOK {
		return verdictFromCmp(left.Cmp(right), op)
	}
	if !quoted {
		return Unknown
	}

	leftStr := strings.ToLower(stringValue(value))
	rightStr := strings.ToLower(unquote(literal))
	return verdictFromCmp(strings.Compare(leftStr, rightStr), op)
}

func verdictFromCmp(cmp int, op string) Verdict {
	var result bool
	switch op {
	case "=":
		result = cmp == 0
	case "<>", "!=":
		result = cmp != 0
	case "<":
		result = cmp < 0
	case ">":
		result = cmp > 0
	case "<=":
		result = cmp <= 0
	case ">=":
		result = cmp >= 0
	default:
		return Unknown
	}
	if result {
		return True
	}
	return False
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case decimal.Decimal:
		return v, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

func toDecimalString(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	if d, ok := toDecimal(value); ok {
		return d.String()
	}
	return ""
}

func unquote(literal string) string {
	if strings.HasPrefix(literal, "'") && strings.HasSuffix(literal, "'") && len(literal) >= 2 {
		inner := literal[1 : len(literal)-1]
		return strings.ReplaceAll(inner, "''", "'")
	}
	return literal
}
