// Package mysql loads existing schemas from MySQL's information_schema.
package mysql

import (
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"

	driver "github.com/go-sql-driver/mysql"
	"github.com/sqldef/entitysync/database"
	"github.com/sqldef/entitysync/schema"
)

type MysqlDatabase struct {
	config database.Config
	db     *sql.DB
}

var _ database.Database = (*MysqlDatabase)(nil)

func NewDatabase(config database.Config) (database.Database, error) {
	if config.SslMode == "custom" {
		if err := registerTLSConfig(config.SslCa); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("mysql", mysqlBuildDSN(config))
	if err != nil {
		return nil, err
	}
	return newDatabase(db, config), nil
}

func newDatabase(db *sql.DB, config database.Config) *MysqlDatabase {
	return &MysqlDatabase{
		db:     db,
		config: config,
	}
}

// LoadSchema reads the database given by TargetSchema, or the connected database.
// MySQL has no sequences.
func (d *MysqlDatabase) LoadSchema() (*schema.Schema, error) {
	namespace := d.GetDefaultSchema()
	result := schema.NewSchema()

	tableNames, err := d.tableNames(namespace)
	if err != nil {
		return nil, err
	}
	tables, err := database.ConcurrentMapFuncWithError(
		tableNames,
		d.config.DumpConcurrency,
		func(tableName string) (*schema.TableDef, error) {
			return d.getTable(namespace, tableName)
		})
	if err != nil {
		return nil, err
	}
	for _, table := range tables {
		result.AddTable(table)
	}

	loaders := []func(string, *schema.Schema) error{
		d.loadPrimaryKeys,
		d.loadForeignKeys,
		d.loadUniques,
		d.loadChecks,
		d.loadIndexes,
	}
	for _, load := range loaders {
		if err := load(namespace, result); err != nil {
			return nil, err
		}
	}

	slog.Debug("Loaded existing schema", "database", namespace, "tables", len(result.Tables))
	return result, nil
}

func (d *MysqlDatabase) tableNames(namespace string) ([]string, error) {
	rows, err := d.db.Query(`SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = ? AND table_type = 'BASE TABLE'
	ORDER BY table_name`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

// getTable reads column_type rather than data_type, so that types carry their length the
// way the dialect renders them.
func (d *MysqlDatabase) getTable(namespace, tableName string) (*schema.TableDef, error) {
	rows, err := d.db.Query(`SELECT column_name, column_type, data_type, is_nullable, ordinal_position
	FROM information_schema.columns
	WHERE table_schema = ? AND table_name = ?
	ORDER BY ordinal_position`, namespace, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := schema.NewTableDef(tableName)
	for rows.Next() {
		var name, columnType, dataType, isNullable string
		var ordinal int
		if err := rows.Scan(&name, &columnType, &dataType, &isNullable, &ordinal); err != nil {
			return nil, err
		}
		table.AddColumn(&schema.ColumnDef{
			Name:       name,
			Type:       columnType,
			IsNullable: isNullable == "YES",
			IsJSON:     dataType == "json",
			Ordinal:    ordinal,
		})
	}
	return table, rows.Err()
}

func (d *MysqlDatabase) loadPrimaryKeys(namespace string, result *schema.Schema) error {
	rows, err := d.db.Query(`SELECT table_name, column_name
	FROM information_schema.key_column_usage
	WHERE table_schema = ? AND constraint_name = 'PRIMARY'
	ORDER BY table_name, ordinal_position`, namespace)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		pk := schema.PrimaryKeyDef{ConstraintName: "PRIMARY"}
		if err := rows.Scan(&pk.Table, &pk.Column); err != nil {
			return err
		}
		if existing, ok := result.PrimaryKeys[pk.Table]; ok {
			slog.Warn("Composite primary key is not supported; using its first column", "table", pk.Table, "column", existing.Column)
			continue
		}
		result.AddPrimaryKey(pk)
	}
	return rows.Err()
}

// constraintColumns is one constraint or index with its ordered columns.
type constraintColumns struct {
	name    string
	table   string
	columns []string
}

// groupColumns folds (name, table, column) rows ordered by table and name into one entry per
// constraint.
func groupColumns(rows *sql.Rows) ([]constraintColumns, error) {
	defer rows.Close()

	var groups []constraintColumns
	for rows.Next() {
		var name, table, column string
		if err := rows.Scan(&name, &table, &column); err != nil {
			return nil, err
		}
		if n := len(groups); n > 0 && groups[n-1].name == name && groups[n-1].table == table {
			groups[n-1].columns = append(groups[n-1].columns, column)
			continue
		}
		groups = append(groups, constraintColumns{name: name, table: table, columns: []string{column}})
	}
	return groups, rows.Err()
}

func (d *MysqlDatabase) loadForeignKeys(namespace string, result *schema.Schema) error {
	rows, err := d.db.Query(`SELECT constraint_name, table_name, column_name, referenced_table_name, referenced_column_name
	FROM information_schema.key_column_usage
	WHERE table_schema = ? AND referenced_table_name IS NOT NULL
	ORDER BY table_name, constraint_name, ordinal_position`, namespace)
	if err != nil {
		return err
	}
	defer rows.Close()

	var fks []schema.ForeignKeyDef
	composite := map[string]bool{}
	for rows.Next() {
		var fk schema.ForeignKeyDef
		if err := rows.Scan(&fk.ConstraintName, &fk.LocalTable, &fk.LocalColumn, &fk.ForeignTable, &fk.ForeignColumn); err != nil {
			return err
		}
		if n := len(fks); n > 0 && fks[n-1].ConstraintName == fk.ConstraintName && fks[n-1].LocalTable == fk.LocalTable {
			composite[fk.LocalTable+"."+fk.ConstraintName] = true
			continue
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fk := range fks {
		if composite[fk.LocalTable+"."+fk.ConstraintName] {
			slog.Debug("Skipping composite foreign key", "table", fk.LocalTable, "constraint", fk.ConstraintName)
			continue
		}
		result.AddForeignKey(fk)
	}
	return nil
}

func (d *MysqlDatabase) loadUniques(namespace string, result *schema.Schema) error {
	rows, err := d.db.Query(`SELECT tc.constraint_name, tc.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_schema = tc.constraint_schema
	  AND kcu.table_name = tc.table_name
	  AND kcu.constraint_name = tc.constraint_name
	WHERE tc.constraint_type = 'UNIQUE' AND tc.table_schema = ?
	ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`, namespace)
	if err != nil {
		return err
	}
	groups, err := groupColumns(rows)
	if err != nil {
		return err
	}
	for _, g := range groups {
		result.AddUnique(schema.UniqueDef{Name: g.name, Table: g.table, Columns: g.columns})
	}
	return nil
}

var firstIdentifier = regexp.MustCompile("`((?:[^`]|``)*)`")

// loadChecks keeps the constraints whose clause reads like "(`c` in (_utf8mb4'a',_utf8mb4'b'))".
func (d *MysqlDatabase) loadChecks(namespace string, result *schema.Schema) error {
	rows, err := d.db.Query(`SELECT cc.constraint_name, tc.table_name, cc.check_clause
	FROM information_schema.check_constraints cc
	JOIN information_schema.table_constraints tc
	  ON tc.constraint_schema = cc.constraint_schema
	  AND tc.constraint_name = cc.constraint_name
	WHERE tc.constraint_type = 'CHECK' AND cc.constraint_schema = ?
	ORDER BY tc.table_name, cc.constraint_name`, namespace)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var check schema.CheckDef
		var clause string
		if err := rows.Scan(&check.Name, &check.Table, &clause); err != nil {
			return err
		}
		match := firstIdentifier.FindStringSubmatch(clause)
		if match == nil {
			slog.Debug("Skipping check constraint without column", "table", check.Table, "constraint", check.Name)
			continue
		}
		check.Column = match[1]
		check.ValidValues = schema.ExtractStringLiterals(clause)
		result.AddCheck(check)
	}
	return rows.Err()
}

// loadIndexes skips unique indexes, functional indexes and the indexes MySQL creates for
// foreign keys. Those are named after the constraint, or after the column when the
// constraint was added without a name.
func (d *MysqlDatabase) loadIndexes(namespace string, result *schema.Schema) error {
	rows, err := d.db.Query(`SELECT index_name, table_name, COALESCE(column_name, '')
	FROM information_schema.statistics
	WHERE table_schema = ? AND non_unique = 1
	ORDER BY table_name, index_name, seq_in_index`, namespace)
	if err != nil {
		return err
	}
	groups, err := groupColumns(rows)
	if err != nil {
		return err
	}

	fkIndexes := map[string]bool{}
	for _, fk := range result.ForeignKeys {
		fkIndexes[fk.LocalTable+"."+fk.ConstraintName] = true
		fkIndexes[fk.LocalTable+"."+fk.LocalColumn] = true
	}
	for _, g := range groups {
		if slices.Contains(g.columns, "") {
			continue
		}
		if len(g.columns) == 1 && fkIndexes[g.table+"."+g.name] {
			continue
		}
		result.AddIndex(schema.IndexDef{Name: g.name, Table: g.table, Columns: g.columns})
	}
	return nil
}

func (d *MysqlDatabase) DB() *sql.DB {
	return d.db
}

func (d *MysqlDatabase) Close() error {
	return d.db.Close()
}

func (d *MysqlDatabase) GetDefaultSchema() string {
	if d.config.TargetSchema != "" {
		return d.config.TargetSchema
	}
	return d.config.DbName
}

func mysqlBuildDSN(config database.Config) string {
	c := driver.NewConfig()
	c.User = config.User
	c.Passwd = config.Password
	c.DBName = config.DbName
	c.AllowCleartextPasswords = config.MySQLEnableCleartextPlugin
	c.TLSConfig = config.SslMode
	if config.Socket == "" {
		c.Net = "tcp"
		c.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	} else {
		c.Net = "unix"
		c.Addr = config.Socket
	}
	return c.FormatDSN()
}

func registerTLSConfig(pemPath string) error {
	rootCertPool := x509.NewCertPool()
	pem, err := os.ReadFile(pemPath)
	if err != nil {
		return err
	}
	if ok := rootCertPool.AppendCertsFromPEM(pem); !ok {
		return fmt.Errorf("failed to append PEM")
	}
	return driver.RegisterTLSConfig("custom", &tls.Config{
		RootCAs: rootCertPool,
	})
}
