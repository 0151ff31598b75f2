package schema

import (
	"fmt"
	"strings"

	"github.com/sqldef/entitysync/util"
)

// Types are spelled the way information_schema.columns.column_type reports them,
// so that existing columns compare equal.
var mysqlTypes = map[string]string{
	"bool":       "tinyint(1)",
	"int16":      "smallint",
	"int32":      "int",
	"int":        "int",
	"int64":      "bigint",
	"float32":    "float",
	"float64":    "double",
	"int8":       "tinyint",
	"byte":       "tinyint",
	"[]byte":     "longblob",
	"decimal":    "decimal(10,0)",
	"string":     "varchar(255)",
	"time":       "datetime",
	"datetime":   "datetime",
	"zoned_time": "timestamp",
	"date":       "date",
	"enum":       "varchar(255)",
}

// MysqlDialect has no sequences; generated keys use AUTO_INCREMENT instead.
type MysqlDialect struct{}

var _ Dialect = MysqlDialect{}

func (MysqlDialect) SQLType(fieldType string) (string, error) {
	if sqlType, ok := mysqlTypes[fieldType]; ok {
		return sqlType, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedType, fieldType)
}

func (MysqlDialect) JSONType() string {
	return "json"
}

func (MysqlDialect) DefaultSequenceName(table, column string) string {
	return ""
}

func (MysqlDialect) NormalizeSequenceName(name string) string {
	return name
}

func (MysqlDialect) SupportsSequences() bool {
	return false
}

func (MysqlDialect) SupportsIdentity() bool {
	return true
}

func (MysqlDialect) CreateSequence(name string) string {
	return ""
}

func (MysqlDialect) DropSequence(name string) string {
	return ""
}

func (d MysqlDialect) CreateTable(table *TableDef, primaryKey string) string {
	var lines []string
	for _, column := range table.OrderedColumns() {
		lines = append(lines, d.columnDefinition(column))
	}
	if primaryKey != "" {
		lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", escapeMysqlName(primaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", escapeMysqlName(table.Name), strings.Join(lines, ",\n  "))
}

func (MysqlDialect) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s", escapeMysqlName(table))
}

func (d MysqlDialect) AddColumn(table string, column *ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", escapeMysqlName(table), d.columnDefinition(column))
}

func (MysqlDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", escapeMysqlName(table), escapeMysqlName(column))
}

// MySQL cannot alter a single column attribute, so every alteration restates the column.

func (d MysqlDialect) AlterColumnType(table string, column *ColumnDef) string {
	return d.modifyColumn(table, column)
}

func (d MysqlDialect) AlterColumnNullability(table string, column *ColumnDef) string {
	return d.modifyColumn(table, column)
}

func (d MysqlDialect) AlterColumnDefault(table string, column *ColumnDef) string {
	return d.modifyColumn(table, column)
}

func (MysqlDialect) AddPrimaryKey(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", escapeMysqlName(table), escapeMysqlName(column))
}

func (MysqlDialect) DropPrimaryKey(pk PrimaryKeyDef) string {
	return fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", escapeMysqlName(pk.Table))
}

func (MysqlDialect) CreateForeignKey(fk ForeignKeyDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD FOREIGN KEY (%s) REFERENCES %s (%s)",
		escapeMysqlName(fk.LocalTable), escapeMysqlName(fk.LocalColumn),
		escapeMysqlName(fk.ForeignTable), escapeMysqlName(fk.ForeignColumn))
}

func (MysqlDialect) DropForeignKey(fk ForeignKeyDef) string {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", escapeMysqlName(fk.LocalTable), escapeMysqlName(fk.ConstraintName))
}

func (MysqlDialect) CreateUnique(u UniqueDef) string {
	name := u.Name
	if name == "" {
		name = util.BuildConstraintName(u.Table, u.Columns, "key")
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
		escapeMysqlName(u.Table), escapeMysqlName(name), joinQuoted(u.Columns, escapeMysqlName))
}

func (MysqlDialect) DropUnique(u UniqueDef) string {
	return fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", escapeMysqlName(u.Table), escapeMysqlName(u.Name))
}

func (MysqlDialect) CreateCheck(c CheckDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CHECK (%s IN (%s))",
		escapeMysqlName(c.Table), escapeMysqlName(c.Column), joinLiterals(c.ValidValues))
}

func (MysqlDialect) DropCheck(c CheckDef) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CHECK %s", escapeMysqlName(c.Table), escapeMysqlName(c.Name))
}

func (MysqlDialect) CreateIndex(i IndexDef) string {
	name := i.Name
	if name == "" {
		name = util.BuildConstraintName(i.Table, i.Columns, "idx")
	}
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		escapeMysqlName(name), escapeMysqlName(i.Table), joinQuoted(i.Columns, escapeMysqlName))
}

func (MysqlDialect) DropIndex(i IndexDef) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", escapeMysqlName(i.Name), escapeMysqlName(i.Table))
}

func (d MysqlDialect) modifyColumn(table string, column *ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", escapeMysqlName(table), d.columnDefinition(column))
}

func (MysqlDialect) columnDefinition(column *ColumnDef) string {
	if column.DefinitionOverride != "" {
		return escapeMysqlName(column.Name) + " " + column.DefinitionOverride
	}
	def := escapeMysqlName(column.Name) + " " + column.Type
	if !column.IsNullable {
		def += " NOT NULL"
	}
	if column.IsIdentity() {
		def += " AUTO_INCREMENT"
	}
	return def
}

func escapeMysqlName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
