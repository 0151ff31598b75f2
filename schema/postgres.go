package schema

import (
	"fmt"
	"strings"

	"github.com/sqldef/entitysync/util"
)

const postgresMaxSequenceValue = "9223372036854775807"

var postgresTypes = map[string]string{
	"bool":       "boolean",
	"int16":      "smallint",
	"int32":      "integer",
	"int":        "integer",
	"int64":      "bigint",
	"float32":    "real",
	"float64":    "double precision",
	"int8":       "smallint",
	"byte":       "smallint",
	"[]byte":     "bytea",
	"decimal":    "numeric",
	"string":     "character varying",
	"time":       "timestamp without time zone",
	"datetime":   "timestamp without time zone",
	"zoned_time": "timestamp with time zone",
	"date":       "date",
	"enum":       "character varying",
}

type PostgresDialect struct{}

var _ Dialect = PostgresDialect{}

func (PostgresDialect) SQLType(fieldType string) (string, error) {
	if sqlType, ok := postgresTypes[fieldType]; ok {
		return sqlType, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedType, fieldType)
}

func (PostgresDialect) JSONType() string {
	return "json"
}

func (PostgresDialect) DefaultSequenceName(table, column string) string {
	return table + "_" + column + "_seq"
}

// Unquoted identifiers fold to lower case.
func (PostgresDialect) NormalizeSequenceName(name string) string {
	return strings.ToLower(name)
}

func (PostgresDialect) SupportsSequences() bool {
	return true
}

func (PostgresDialect) SupportsIdentity() bool {
	return false
}

func (PostgresDialect) CreateSequence(name string) string {
	return fmt.Sprintf("CREATE SEQUENCE %s INCREMENT 1 MINVALUE 1 MAXVALUE %s START 1 CACHE 1", name, postgresMaxSequenceValue)
}

func (PostgresDialect) DropSequence(name string) string {
	// The sequence may already be gone with its owning table.
	return fmt.Sprintf("DROP SEQUENCE IF EXISTS %s CASCADE", name)
}

func (d PostgresDialect) CreateTable(table *TableDef, primaryKey string) string {
	var lines []string
	for _, column := range table.OrderedColumns() {
		lines = append(lines, d.columnDefinition(column))
	}
	if primaryKey != "" {
		lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", escapeSQLName(primaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE %s(\n  %s\n)", escapeSQLName(table.Name), strings.Join(lines, ",\n  "))
}

func (PostgresDialect) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s CASCADE", escapeSQLName(table))
}

func (d PostgresDialect) AddColumn(table string, column *ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", escapeSQLName(table), d.columnDefinition(column))
}

func (PostgresDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", escapeSQLName(table), escapeSQLName(column))
}

func (PostgresDialect) AlterColumnType(table string, column *ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", escapeSQLName(table), escapeSQLName(column.Name), column.Type)
}

func (PostgresDialect) AlterColumnNullability(table string, column *ColumnDef) string {
	action := "SET NOT NULL"
	if column.IsNullable {
		action = "DROP NOT NULL"
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", escapeSQLName(table), escapeSQLName(column.Name), action)
}

func (PostgresDialect) AlterColumnDefault(table string, column *ColumnDef) string {
	action := "DROP DEFAULT"
	if column.SourceSequence != "" {
		action = "SET " + postgresSequenceDefault(column.SourceSequence)
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", escapeSQLName(table), escapeSQLName(column.Name), action)
}

func (PostgresDialect) AddPrimaryKey(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", escapeSQLName(table), escapeSQLName(column))
}

func (PostgresDialect) DropPrimaryKey(pk PrimaryKeyDef) string {
	return postgresDropConstraint(pk.Table, pk.ConstraintName)
}

func (PostgresDialect) CreateForeignKey(fk ForeignKeyDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD FOREIGN KEY (%s) REFERENCES %s(%s)",
		escapeSQLName(fk.LocalTable), escapeSQLName(fk.LocalColumn),
		escapeSQLName(fk.ForeignTable), escapeSQLName(fk.ForeignColumn))
}

func (PostgresDialect) DropForeignKey(fk ForeignKeyDef) string {
	return postgresDropConstraint(fk.LocalTable, fk.ConstraintName)
}

func (PostgresDialect) CreateUnique(u UniqueDef) string {
	name := u.Name
	if name == "" {
		name = util.BuildConstraintName(u.Table, u.Columns, "key")
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
		escapeSQLName(u.Table), escapeSQLName(name), joinQuoted(u.Columns, escapeSQLName))
}

func (PostgresDialect) DropUnique(u UniqueDef) string {
	return postgresDropConstraint(u.Table, u.Name)
}

func (PostgresDialect) CreateCheck(c CheckDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CHECK (%s IN (%s))",
		escapeSQLName(c.Table), escapeSQLName(c.Column), joinLiterals(c.ValidValues))
}

func (PostgresDialect) DropCheck(c CheckDef) string {
	return postgresDropConstraint(c.Table, c.Name)
}

func (PostgresDialect) CreateIndex(i IndexDef) string {
	return fmt.Sprintf("CREATE INDEX ON %s (%s)", escapeSQLName(i.Table), joinQuoted(i.Columns, escapeSQLName))
}

func (PostgresDialect) DropIndex(i IndexDef) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", escapeSQLName(i.Name))
}

func (PostgresDialect) columnDefinition(column *ColumnDef) string {
	if column.DefinitionOverride != "" {
		return escapeSQLName(column.Name) + " " + column.DefinitionOverride
	}
	def := escapeSQLName(column.Name) + " " + column.Type
	if !column.IsNullable {
		def += " NOT NULL"
	}
	if column.SourceSequence != "" {
		def += " " + postgresSequenceDefault(column.SourceSequence)
	}
	return def
}

func postgresSequenceDefault(sequence string) string {
	return fmt.Sprintf("DEFAULT nextval('%s'::regclass)", sequence)
}

func postgresDropConstraint(table, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", escapeSQLName(table), escapeSQLName(name))
}

func escapeSQLName(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
