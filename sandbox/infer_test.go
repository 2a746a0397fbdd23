package sandbox

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func schemaByName(schemas []*TableSchema, name string) *TableSchema {
	for _, s := range schemas {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

func TestInferSelectColumns(t *testing.T) {
	schemas := InferSchema([]string{
		"SELECT ProductId, Name, Price FROM Products WHERE IsActive = 1",
	})

	products := schemaByName(schemas, "Products")
	assert.NotZero(t, products)
	assert.Equal(t, []string{"ProductId", "Name", "Price", "IsActive"}, products.Columns)
}

func TestInferColumnAliases(t *testing.T) {
	schemas := InferSchema([]string{
		"SELECT o.Total AS OrderTotal, o.Status FROM Orders o",
	})

	orders := schemaByName(schemas, "Orders")
	assert.NotZero(t, orders)
	assert.Equal(t, []string{"OrderTotal", "Status"}, orders.Columns)
}

func TestInferStarContributesNothing(t *testing.T) {
	schemas := InferSchema([]string{"SELECT * FROM Users"})

	users := schemaByName(schemas, "Users")
	assert.NotZero(t, users)
	assert.Equal(t, 0, len(users.Columns))
}

func TestInferUpdateSet(t *testing.T) {
	schemas := InferSchema([]string{
		"UPDATE Orders SET Status = 'paid', PaidDate = datetime('now') WHERE OrderId = 1",
	})

	orders := schemaByName(schemas, "Orders")
	assert.NotZero(t, orders)
	assert.Equal(t, []string{"Status", "PaidDate", "OrderId"}, orders.Columns)
}

func TestInferInsertColumns(t *testing.T) {
	schemas := InferSchema([]string{
		"INSERT INTO Archive (ItemId, ItemName) SELECT Id, Name FROM Products",
	})

	archive := schemaByName(schemas, "Archive")
	assert.NotZero(t, archive)
	assert.Equal(t, []string{"ItemId", "ItemName"}, archive.Columns)
	assert.NotZero(t, schemaByName(schemas, "Products"))
}

func TestInferAccumulatesAcrossStatements(t *testing.T) {
	schemas := InferSchema([]string{
		"SELECT Name FROM Products",
		"UPDATE Products SET Stock = 0",
	})

	products := schemaByName(schemas, "Products")
	assert.Equal(t, []string{"Name", "Stock"}, products.Columns)
}

func TestColumnTypeRules(t *testing.T) {
	assert.Equal(t, "INTEGER", ColumnType("ProductId"))
	assert.Equal(t, "REAL", ColumnType("UnitPrice"))
	assert.Equal(t, "REAL", ColumnType("TotalAmount"))
	assert.Equal(t, "INTEGER", ColumnType("StockQty"))
	assert.Equal(t, "REAL", ColumnType("TaxRate"))
	assert.Equal(t, "TEXT", ColumnType("CreatedDate"))
	assert.Equal(t, "INTEGER", ColumnType("IsActive"))
	assert.Equal(t, "TEXT", ColumnType("Description"))
	assert.Equal(t, "TEXT", ColumnType("CustomerGuid"))
}

func TestCreateTableSQL(t *testing.T) {
	schema := &TableSchema{Name: "Products", seen: map[string]bool{}}
	schema.addColumn("Name")
	schema.addColumn("Price")

	sql := CreateTableSQL(schema)
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS Products (Id INTEGER PRIMARY KEY AUTOINCREMENT, Name TEXT DEFAULT NULL, Price REAL DEFAULT NULL)",
		sql)
}

func TestSeederReproducible(t *testing.T) {
	a := NewSeeder(DefaultSeed, 0)
	b := NewSeeder(DefaultSeed, 0)

	for i := 1; i <= 10; i++ {
		assert.Equal(t, a.value("Products", "Price", i), b.value("Products", "Price", i))
		assert.Equal(t, a.value("Orders", "Status", i), b.value("Orders", "Status", i))
	}
}

func TestSeederRowCount(t *testing.T) {
	assert.Equal(t, 6, RowCount(1))
	assert.Equal(t, 9, RowCount(4))
	assert.Equal(t, 12, RowCount(7))
	assert.Equal(t, 12, RowCount(20))
}

func TestSeederVocabularies(t *testing.T) {
	s := NewSeeder(DefaultSeed, 0)

	name := s.value("Products", "Name", 1)
	assert.Equal(t, "Widget", name)

	person := s.value("Users", "CustomerName", 2)
	assert.Equal(t, "Bob Smith", person)

	flag := s.value("Products", "IsActive", 1)
	switch flag.(type) {
	case int:
	default:
		t.Fatalf("expected int flag, got %T", flag)
	}
}
