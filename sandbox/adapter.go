package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

type rewriteRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// rewriteRules is the fixed substitution sequence that turns the
// supported T-SQL subset into SQLite-compatible SQL. Only the hint rules
// are order-sensitive: the NOLOCK rule must run before the general
// WITH (...) hint rule.
var rewriteRules = []rewriteRule{
	// function renames
	{regexp.MustCompile(`(?i)\bGETDATE\s*\(\s*\)`), `datetime('now')`},
	{regexp.MustCompile(`(?i)\bSYSDATETIME\s*\(\s*\)`), `datetime('now')`},
	{regexp.MustCompile(`(?i)\bNEWID\s*\(\s*\)`), `hex(randomblob(16))`},
	{regexp.MustCompile(`(?i)\bISNULL\s*\(`), `ifnull(`},
	{regexp.MustCompile(`(?i)\bLEN\s*\(`), `length(`},

	// type simplifications
	{regexp.MustCompile(`(?i)\bNVARCHAR\s*\(\s*(?:MAX|\d+)\s*\)`), `TEXT`},
	{regexp.MustCompile(`(?i)\bVARCHAR\s*\(\s*(?:MAX|\d+)\s*\)`), `TEXT`},
	{regexp.MustCompile(`(?i)\bDECIMAL\s*\(\s*\d+\s*,\s*\d+\s*\)`), `REAL`},
	{regexp.MustCompile(`(?i)\bFLOAT\b`), `REAL`},
	{regexp.MustCompile(`(?i)\bBIT\b`), `INTEGER`},
	{regexp.MustCompile(`(?i)\bIDENTITY\s*\(\s*\d+\s*,\s*\d+\s*\)`), `AUTOINCREMENT`},

	// schema stripping
	{regexp.MustCompile(`(?i)\bdbo\.`), ``},

	// hint stripping
	{regexp.MustCompile(`(?i)\bTOP\s+\(?\d+\)?\s*`), ``},
	{regexp.MustCompile(`(?i)\bWITH\s*\(\s*NOLOCK\s*\)`), ``},
	{regexp.MustCompile(`(?i)\bWITH\s*\([^)]*\)`), ``},
}

// Adapt rewrites one statement for the sandbox engine.
func Adapt(statement string) string {
	for _, rule := range rewriteRules {
		statement = rule.pattern.ReplaceAllString(statement, rule.replacement)
	}
	return statement
}

var paramRefRe = regexp.MustCompile(`@@?\w+`)

// BindParams substitutes parameter references with literal values so the
// statement can run standalone. System variables (@@ROWCOUNT and friends)
// are left untouched; unbound parameters become NULL.
func BindParams(statement string, params map[string]any) string {
	return paramRefRe.ReplaceAllStringFunc(statement, func(ref string) string {
		if strings.HasPrefix(ref, "@@") {
			return ref
		}
		value, ok := lookupParam(params, ref)
		if !ok {
			return "NULL"
		}
		return sqlLiteral(value)
	})
}

// IsDangerousStatement reports whether a statement is a DELETE or UPDATE
// without a WHERE clause.
func IsDangerousStatement(sql string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(sql))
	if strings.HasPrefix(normalized, "DELETE FROM") && !strings.Contains(normalized, "WHERE") {
		return true
	}
	if strings.HasPrefix(normalized, "UPDATE") && !strings.Contains(normalized, "WHERE") {
		return true
	}
	return false
}

func lookupParam(params map[string]any, ref string) (any, bool) {
	bare := strings.TrimPrefix(ref, "@")
	for key, value := range params {
		if strings.EqualFold(strings.TrimPrefix(key, "@"), bare) {
			return value, true
		}
	}
	return nil, false
}

func sqlLiteral(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", v)
	}
}
