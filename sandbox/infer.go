package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

// TableSchema is one inferred table: the column order is first-seen so
// creation and seeding stay deterministic.
type TableSchema struct {
	Name    string
	Columns []string

	seen map[string]bool
}

func (t *TableSchema) addColumn(name string) {
	name = strings.TrimSpace(name)
	if name == "" || name == "*" || strings.EqualFold(name, "Id") {
		return
	}
	if !identRe.MatchString(name) {
		return
	}
	key := strings.ToLower(name)
	if t.seen[key] {
		return
	}
	t.seen[key] = true
	t.Columns = append(t.Columns, name)
}

var (
	identRe       = regexp.MustCompile(`^[A-Za-z_]\w*$`)
	tableRefRe    = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE)\s+([A-Za-z_#]\w*)`)
	selectFromRe  = regexp.MustCompile(`(?is)\bSELECT\s+(.*?)\s+FROM\s+([A-Za-z_#]\w*)`)
	updateSetRe   = regexp.MustCompile(`(?is)\bUPDATE\s+([A-Za-z_#]\w*)\s+SET\s+(.*?)(?:\bWHERE\b|$)`)
	insertColsRe  = regexp.MustCompile(`(?is)\bINSERT\s+INTO\s+([A-Za-z_#]\w*)\s*\(([^)]*)\)`)
	whereColRe    = regexp.MustCompile(`(?i)\b(?:WHERE|AND|OR)\s+([A-Za-z_]\w*)\s*(?:=|<>|!=|<=|>=|<|>|\bIS\b|\bLIKE\b|\bIN\b)`)
	reservedWords = map[string]bool{
		"select": true, "where": true, "from": true, "set": true, "values": true,
		"exists": true, "not": true, "null": true, "and": true, "or": true,
	}
)

// InferSchema scans adapted statements for table references and builds a
// name-keyed schema, accumulating every column the statements touch.
// Tables keep first-reference order.
func InferSchema(statements []string) []*TableSchema {
	var order []string
	tables := map[string]*TableSchema{}

	table := func(name string) *TableSchema {
		key := strings.ToLower(name)
		if reservedWords[key] {
			return nil
		}
		if t, ok := tables[key]; ok {
			return t
		}
		t := &TableSchema{Name: name, seen: map[string]bool{}}
		tables[key] = t
		order = append(order, key)
		return t
	}

	for _, stmt := range statements {
		var primary *TableSchema
		for _, m := range tableRefRe.FindAllStringSubmatch(stmt, -1) {
			t := table(m[1])
			if primary == nil {
				primary = t
			}
		}

		for _, m := range selectFromRe.FindAllStringSubmatch(stmt, -1) {
			t := table(m[2])
			if t == nil {
				continue
			}
			for _, col := range splitColumns(m[1]) {
				t.addColumn(col)
			}
		}

		for _, m := range updateSetRe.FindAllStringSubmatch(stmt, -1) {
			t := table(m[1])
			if t == nil {
				continue
			}
			for _, assign := range strings.Split(m[2], ",") {
				if eq := strings.Index(assign, "="); eq > 0 {
					t.addColumn(lastIdentifier(assign[:eq]))
				}
			}
		}

		for _, m := range insertColsRe.FindAllStringSubmatch(stmt, -1) {
			t := table(m[1])
			if t == nil {
				continue
			}
			for _, col := range strings.Split(m[2], ",") {
				t.addColumn(lastIdentifier(col))
			}
		}

		if primary != nil {
			for _, m := range whereColRe.FindAllStringSubmatch(stmt, -1) {
				primary.addColumn(m[1])
			}
		}
	}

	out := make([]*TableSchema, 0, len(order))
	for _, key := range order {
		out = append(out, tables[key])
	}
	return out
}

// splitColumns breaks a SELECT column list at top-level commas and
// reduces each item to its trailing identifier, so "t.Col AS X" yields
// "X" and "t.Col" yields "Col". Star and aggregate items yield nothing.
func splitColumns(list string) []string {
	var cols []string
	depth := 0
	start := 0
	flush := func(end int) {
		item := strings.TrimSpace(list[start:end])
		if item == "" || item == "*" || strings.Contains(item, "(") {
			return
		}
		if col := lastIdentifier(item); col != "" {
			cols = append(cols, col)
		}
	}
	for i, r := range list {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(list))
	return cols
}

func lastIdentifier(expr string) string {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	if dot := strings.LastIndex(last, "."); dot >= 0 {
		last = last[dot+1:]
	}
	if !identRe.MatchString(last) {
		return ""
	}
	return last
}

// ColumnType infers a SQLite column type from the column name using a
// closed set of substring rules, checked in precedence order.
func ColumnType(column string) string {
	name := strings.ToLower(column)
	switch {
	case strings.Contains(name, "id") && !strings.Contains(name, "guid"):
		return "INTEGER"
	case containsAny(name, "price", "cost", "amount", "total"):
		return "REAL"
	case containsAny(name, "qty", "quantity", "stock", "count", "num"):
		return "INTEGER"
	case containsAny(name, "rate", "percent", "ratio"):
		return "REAL"
	case containsAny(name, "date", "time", "created", "updated", "modified"):
		return "TEXT"
	case containsAny(name, "active", "is", "has", "flag", "enabled"):
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CreateTableSQL renders the CREATE TABLE statement for an inferred table.
func CreateTableSQL(t *TableSchema) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (Id INTEGER PRIMARY KEY AUTOINCREMENT", t.Name)
	for _, col := range t.Columns {
		fmt.Fprintf(&sb, ", %s %s DEFAULT NULL", col, ColumnType(col))
	}
	sb.WriteString(")")
	return sb.String()
}
