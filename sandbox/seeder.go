package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
)

// DefaultSeed fixes the sandbox's pseudo-random source so seeded data is
// reproducible across runs.
const DefaultSeed = 42

const maxSeedRows = 12

var (
	productNames = []string{"Widget", "Gadget", "Sprocket", "Gizmo", "Doohickey", "Flange", "Bracket", "Coupler", "Spindle", "Grommet", "Washer", "Bearing"}
	personNames  = []string{"Alice Johnson", "Bob Smith", "Carol White", "David Brown", "Erin Davis", "Frank Miller", "Grace Lee", "Henry Wilson", "Iris Clark", "Jack Lewis", "Karen Hall", "Liam Young"}
	statusWords  = []string{"active", "pending", "shipped", "paid", "cancelled", "draft"}
	emailDomains = []string{"example.com", "test.local", "mail.example.org"}
)

// Seeder populates inferred tables with deterministic sample data. One
// seeder, and therefore one random source, is scoped to one sandbox run.
type Seeder struct {
	rng     *rand.Rand
	maxRows int
}

// NewSeeder creates a seeder with the given seed and row cap. A cap of
// zero or less falls back to the default.
func NewSeeder(seed int64, maxRows int) *Seeder {
	if maxRows <= 0 {
		maxRows = maxSeedRows
	}
	return &Seeder{rng: rand.New(rand.NewSource(seed)), maxRows: maxRows}
}

// RowCount returns the number of rows seeded into a table with the given
// column count under the default cap.
func RowCount(columnCount int) int {
	n := 5 + columnCount
	if n > maxSeedRows {
		return maxSeedRows
	}
	return n
}

func (s *Seeder) rowCount(columnCount int) int {
	n := 5 + columnCount
	if n > s.maxRows {
		return s.maxRows
	}
	return n
}

// SeedTable inserts sample rows into one table and returns how many.
func (s *Seeder) SeedTable(ctx context.Context, db *sql.DB, t *TableSchema) (int, error) {
	if len(t.Columns) == 0 {
		rows := s.rowCount(0)
		for i := 0; i < rows; i++ {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", t.Name)); err != nil {
				return 0, err
			}
		}
		return rows, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(t.Columns, ", "), placeholders)

	rows := s.rowCount(len(t.Columns))
	for i := 1; i <= rows; i++ {
		values := make([]any, len(t.Columns))
		for j, col := range t.Columns {
			values[j] = s.value(t.Name, col, i)
		}
		if _, err := db.ExecContext(ctx, insert, values...); err != nil {
			return 0, err
		}
	}
	return rows, nil
}

// value generates one cell. Column name substrings pick the shape; the
// table name picks a vocabulary for names so products and people read
// plausibly.
func (s *Seeder) value(table, column string, row int) any {
	name := strings.ToLower(column)
	tbl := strings.ToLower(table)

	switch {
	case strings.Contains(name, "email"):
		return fmt.Sprintf("user%d@%s", row, emailDomains[s.rng.Intn(len(emailDomains))])
	case strings.Contains(name, "status"):
		return statusWords[s.rng.Intn(len(statusWords))]
	case strings.Contains(name, "name"):
		if containsAny(tbl, "user", "customer", "employee", "person") {
			return personNames[(row-1)%len(personNames)]
		}
		if strings.Contains(tbl, "product") || strings.Contains(tbl, "item") {
			return productNames[(row-1)%len(productNames)]
		}
		return fmt.Sprintf("Sample %s %d", column, row)
	case strings.Contains(name, "guid"):
		return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
			s.rng.Uint32(), s.rng.Intn(0x10000), s.rng.Intn(0x10000), s.rng.Intn(0x10000), s.rng.Int63n(1<<48))
	}

	switch ColumnType(column) {
	case "INTEGER":
		if containsAny(name, "active", "is", "has", "flag", "enabled") {
			return s.rng.Intn(2)
		}
		if strings.Contains(name, "id") {
			return s.rng.Intn(100) + 1
		}
		return s.rng.Intn(100)
	case "REAL":
		if containsAny(name, "rate", "percent", "ratio") {
			return float64(s.rng.Intn(1000)) / 1000.0
		}
		return float64(s.rng.Intn(50000)) / 100.0
	default:
		if containsAny(name, "date", "time", "created", "updated", "modified") {
			return fmt.Sprintf("2024-%02d-%02d %02d:%02d:00",
				s.rng.Intn(12)+1, s.rng.Intn(28)+1, s.rng.Intn(24), s.rng.Intn(60))
		}
		return fmt.Sprintf("Sample %s %d", column, row)
	}
}
