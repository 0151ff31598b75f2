package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqldef/entitysync/util"
)

type GeneratorMode int

const (
	GeneratorModeMysql = GeneratorMode(iota)
	GeneratorModePostgres
)

func (m GeneratorMode) String() string {
	switch m {
	case GeneratorModeMysql:
		return "mysql"
	case GeneratorModePostgres:
		return "postgres"
	default:
		return fmt.Sprintf("GeneratorMode(%d)", int(m))
	}
}

// Dialect maps field types to column types and renders every detected change as one DDL
// statement, without the trailing semicolon. New dialects implement the whole interface.
type Dialect interface {
	SQLType(fieldType string) (string, error)
	JSONType() string
	DefaultSequenceName(table, column string) string
	// NormalizeSequenceName returns the name under which the database reports a sequence
	// created with the unquoted name.
	NormalizeSequenceName(name string) string
	SupportsSequences() bool
	SupportsIdentity() bool

	CreateSequence(name string) string
	DropSequence(name string) string

	// CreateTable renders the table with all columns and, when primaryKey is not empty,
	// its primary key clause.
	CreateTable(table *TableDef, primaryKey string) string
	DropTable(table string) string

	AddColumn(table string, column *ColumnDef) string
	DropColumn(table, column string) string
	AlterColumnType(table string, column *ColumnDef) string
	AlterColumnNullability(table string, column *ColumnDef) string
	AlterColumnDefault(table string, column *ColumnDef) string

	AddPrimaryKey(table, column string) string
	DropPrimaryKey(pk PrimaryKeyDef) string
	CreateForeignKey(fk ForeignKeyDef) string
	DropForeignKey(fk ForeignKeyDef) string
	CreateUnique(u UniqueDef) string
	DropUnique(u UniqueDef) string
	CreateCheck(c CheckDef) string
	DropCheck(c CheckDef) string
	CreateIndex(i IndexDef) string
	DropIndex(i IndexDef) string
}

func NewDialect(mode GeneratorMode) Dialect {
	switch mode {
	case GeneratorModeMysql:
		return MysqlDialect{}
	case GeneratorModePostgres:
		return PostgresDialect{}
	default:
		panic(fmt.Sprintf("unexpected generator mode: %s", mode))
	}
}

// StringConstant renders s as a single-quoted SQL string literal.
func StringConstant(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var stringLiteral = regexp.MustCompile(`'((?:[^']|'')*)'`)

// ExtractStringLiterals returns the contents of every single-quoted literal in expr, in order.
// It reads the valid values back from a check constraint definition.
func ExtractStringLiterals(expr string) []string {
	var values []string
	for _, match := range stringLiteral.FindAllStringSubmatch(expr, -1) {
		values = append(values, strings.ReplaceAll(match[1], "''", "'"))
	}
	return values
}

func joinQuoted(names []string, quote func(string) string) string {
	return strings.Join(util.TransformSlice(names, quote), ", ")
}

func joinLiterals(values []string) string {
	return strings.Join(util.TransformSlice(values, StringConstant), ", ")
}
