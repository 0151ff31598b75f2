// Package postgres loads existing schemas from the PostgreSQL catalog.
package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	pgquery "github.com/pganalyze/pg_query_go/v2"
	"github.com/sqldef/entitysync/database"
	"github.com/sqldef/entitysync/schema"
)

type PostgresDatabase struct {
	config        database.Config
	db            *sql.DB
	defaultSchema *string
}

var _ database.Database = (*PostgresDatabase)(nil)

func NewDatabase(config database.Config) (database.Database, error) {
	db, err := sql.Open(driverName(config), postgresBuildDSN(config))
	if err != nil {
		return nil, err
	}
	return newDatabase(db, config), nil
}

func newDatabase(db *sql.DB, config database.Config) *PostgresDatabase {
	return &PostgresDatabase{
		db:     db,
		config: config,
	}
}

func driverName(config database.Config) string {
	if config.Driver == "pgx" {
		return "pgx"
	}
	return "postgres"
}

// LoadSchema reads the namespace given by TargetSchema, or the current schema.
func (d *PostgresDatabase) LoadSchema() (*schema.Schema, error) {
	namespace := d.namespace()
	result := schema.NewSchema()

	sequences, err := d.sequenceNames(namespace)
	if err != nil {
		return nil, err
	}
	for _, name := range sequences {
		result.AddSequence(name)
	}

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

	slog.Debug("Loaded existing schema", "schema", namespace, "tables", len(result.Tables), "sequences", len(result.Sequences))
	return result, nil
}

func (d *PostgresDatabase) namespace() string {
	if d.config.TargetSchema != "" {
		return d.config.TargetSchema
	}
	return d.GetDefaultSchema()
}

// sequenceNames excludes sequences owned by identity columns.
func (d *PostgresDatabase) sequenceNames(namespace string) ([]string, error) {
	const query = `SELECT c.relname
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relkind = 'S'
	AND n.nspname = $1
	AND NOT EXISTS (SELECT 1 FROM pg_catalog.pg_depend d WHERE d.objid = c.oid AND d.deptype = 'i')
	ORDER BY c.relname`
	return d.queryStrings(query, namespace)
}

func (d *PostgresDatabase) tableNames(namespace string) ([]string, error) {
	const query = `SELECT c.relname
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
	WHERE n.nspname = $1
	AND c.relkind IN ('r', 'p')
	AND c.relpersistence IN ('p', 'u')
	AND c.relispartition = false
	AND NOT EXISTS (SELECT 1 FROM pg_catalog.pg_depend d WHERE c.oid = d.objid AND d.deptype = 'e')
	ORDER BY c.relname`
	return d.queryStrings(query, namespace)
}

func (d *PostgresDatabase) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func (d *PostgresDatabase) getTable(namespace, tableName string) (*schema.TableDef, error) {
	const query = `SELECT column_name, data_type, is_nullable, column_default, ordinal_position
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

	rows, err := d.db.Query(query, namespace, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := schema.NewTableDef(tableName)
	for rows.Next() {
		var name, dataType, isNullable string
		var columnDefault *string
		var ordinal int
		if err := rows.Scan(&name, &dataType, &isNullable, &columnDefault, &ordinal); err != nil {
			return nil, err
		}
		dataType = strings.ToLower(dataType)
		column := &schema.ColumnDef{
			Name:       name,
			Type:       dataType,
			IsNullable: isNullable == "YES",
			IsJSON:     dataType == "json",
			Ordinal:    ordinal,
		}
		if columnDefault != nil {
			column.SourceSequence = sourceSequence(*columnDefault)
		}
		table.AddColumn(column)
	}
	return table, rows.Err()
}

// sourceSequence returns X for a default of the form nextval('X'::regclass).
func sourceSequence(columnDefault string) string {
	const prefix, suffix = "nextval('", "'::regclass)"
	if strings.HasPrefix(columnDefault, prefix) && strings.HasSuffix(columnDefault, suffix) && len(columnDefault) > len(prefix)+len(suffix) {
		return columnDefault[len(prefix) : len(columnDefault)-len(suffix)]
	}
	return ""
}

// loadPrimaryKeys only tracks single-column primary keys. For a composite key the first
// column is kept.
func (d *PostgresDatabase) loadPrimaryKeys(namespace string, result *schema.Schema) error {
	const query = `SELECT tc.table_name, kcu.column_name, tc.constraint_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name
	  AND kcu.table_schema = tc.table_schema
	  AND kcu.table_name = tc.table_name
	WHERE tc.constraint_type = 'PRIMARY KEY'
	AND tc.table_schema = $1
	ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := d.db.Query(query, namespace)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var pk schema.PrimaryKeyDef
		if err := rows.Scan(&pk.Table, &pk.Column, &pk.ConstraintName); err != nil {
			return err
		}
		if existing, ok := result.PrimaryKeys[pk.Table]; ok {
			slog.Warn("Composite primary key is not supported; using its first column",
				"table", pk.Table, "constraint", pk.ConstraintName, "column", existing.Column)
			continue
		}
		result.AddPrimaryKey(pk)
	}
	return rows.Err()
}

func (d *PostgresDatabase) loadForeignKeys(namespace string, result *schema.Schema) error {
	const query = `SELECT con.conname, cls.relname, att.attname, fcls.relname, fatt.attname
	FROM pg_catalog.pg_constraint con
	JOIN pg_catalog.pg_namespace nsp ON nsp.oid = con.connamespace
	JOIN pg_catalog.pg_class cls ON cls.oid = con.conrelid
	JOIN pg_catalog.pg_class fcls ON fcls.oid = con.confrelid
	JOIN pg_catalog.pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = con.conkey[1]
	JOIN pg_catalog.pg_attribute fatt ON fatt.attrelid = con.confrelid AND fatt.attnum = con.confkey[1]
	WHERE con.contype = 'f'
	AND nsp.nspname = $1
	AND array_length(con.conkey, 1) = 1
	ORDER BY cls.relname, con.conname`

	rows, err := d.db.Query(query, namespace)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var fk schema.ForeignKeyDef
		if err := rows.Scan(&fk.ConstraintName, &fk.LocalTable, &fk.LocalColumn, &fk.ForeignTable, &fk.ForeignColumn); err != nil {
			return err
		}
		result.AddForeignKey(fk)
	}
	return rows.Err()
}

// loadUniques maps the constraint's column numbers back to names through the column ordinals.
func (d *PostgresDatabase) loadUniques(namespace string, result *schema.Schema) error {
	const query = `SELECT con.conname, cls.relname, con.conkey
	FROM pg_catalog.pg_constraint con
	JOIN pg_catalog.pg_namespace nsp ON nsp.oid = con.connamespace
	JOIN pg_catalog.pg_class cls ON cls.oid = con.conrelid
	WHERE con.contype = 'u'
	AND nsp.nspname = $1
	ORDER BY cls.relname, con.conname`

	rows, err := d.db.Query(query, namespace)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, tableName string
		var ordinals []int64
		if err := rows.Scan(&name, &tableName, pq.Array(&ordinals)); err != nil {
			return err
		}
		table, ok := result.Table(tableName)
		if !ok {
			continue
		}
		columns, err := columnsByOrdinal(table, ordinals)
		if err != nil {
			return fmt.Errorf("unique constraint %s: %w", name, err)
		}
		result.AddUnique(schema.UniqueDef{Name: name, Table: tableName, Columns: columns})
	}
	return rows.Err()
}

func columnsByOrdinal(table *schema.TableDef, ordinals []int64) ([]string, error) {
	byOrdinal := map[int64]string{}
	for _, column := range table.OrderedColumns() {
		byOrdinal[int64(column.Ordinal)] = column.Name
	}

	columns := make([]string, 0, len(ordinals))
	for _, ordinal := range ordinals {
		name, ok := byOrdinal[ordinal]
		if !ok {
			return nil, fmt.Errorf("no column at position %d of table %s", ordinal, table.Name)
		}
		columns = append(columns, name)
	}
	return columns, nil
}

func (d *PostgresDatabase) loadChecks(namespace string, result *schema.Schema) error {
	const query = `SELECT con.conname, cls.relname, att.attname, pg_get_constraintdef(con.oid, true)
	FROM pg_catalog.pg_constraint con
	JOIN pg_catalog.pg_namespace nsp ON nsp.oid = con.connamespace
	JOIN pg_catalog.pg_class cls ON cls.oid = con.conrelid
	JOIN pg_catalog.pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = con.conkey[1]
	WHERE con.contype = 'c'
	AND nsp.nspname = $1
	AND array_length(con.conkey, 1) = 1
	ORDER BY cls.relname, con.conname`

	rows, err := d.db.Query(query, namespace)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var check schema.CheckDef
		var definition string
		if err := rows.Scan(&check.Name, &check.Table, &check.Column, &definition); err != nil {
			return err
		}
		// e.g. CHECK (s::text = ANY (ARRAY['a'::character varying, 'b'::character varying]::text[]))
		check.ValidValues = schema.ExtractStringLiterals(definition)
		result.AddCheck(check)
	}
	return rows.Err()
}

// loadIndexes excludes the indexes backing primary key, unique and exclusion constraints,
// since their constraints represent them.
func (d *PostgresDatabase) loadIndexes(namespace string, result *schema.Schema) error {
	const query = `WITH
	  exclude_constraints AS (
	    SELECT con.conname AS name
	    FROM   pg_catalog.pg_constraint con
	    JOIN   pg_catalog.pg_namespace nsp ON nsp.oid = con.connamespace
	    WHERE  con.contype IN ('p', 'u', 'x')
	    AND    nsp.nspname = $1
	  )
	SELECT tablename, indexname, indexdef
	FROM   pg_indexes
	WHERE  schemaname = $1
	AND    indexname NOT IN (SELECT name FROM exclude_constraints)
	ORDER BY tablename, indexname`

	rows, err := d.db.Query(query, namespace)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, name, indexdef string
		if err := rows.Scan(&tableName, &name, &indexdef); err != nil {
			return err
		}
		columns, unique, err := parseIndexColumns(indexdef)
		if err != nil {
			return fmt.Errorf("index %s: %w", name, err)
		}
		if unique || len(columns) == 0 {
			slog.Debug("Skipping index", "index", name, "unique", unique)
			continue
		}
		result.AddIndex(schema.IndexDef{Name: name, Table: tableName, Columns: columns})
	}
	return rows.Err()
}

// parseIndexColumns returns the indexed column names of a CREATE INDEX statement. Expression
// indexes yield no columns.
func parseIndexColumns(indexdef string) ([]string, bool, error) {
	tree, err := pgquery.Parse(indexdef)
	if err != nil {
		return nil, false, err
	}
	if len(tree.Stmts) != 1 {
		return nil, false, fmt.Errorf("expected one statement, got %d", len(tree.Stmts))
	}
	stmt := tree.Stmts[0].Stmt.GetIndexStmt()
	if stmt == nil {
		return nil, false, fmt.Errorf("not a CREATE INDEX statement: %s", indexdef)
	}

	var columns []string
	for _, param := range stmt.IndexParams {
		elem := param.GetIndexElem()
		if elem == nil || elem.Name == "" {
			return nil, stmt.Unique, nil
		}
		columns = append(columns, elem.Name)
	}
	return columns, stmt.Unique, nil
}

func (d *PostgresDatabase) DB() *sql.DB {
	return d.db
}

func (d *PostgresDatabase) Close() error {
	return d.db.Close()
}

func (d *PostgresDatabase) GetDefaultSchema() string {
	if d.defaultSchema != nil {
		return *d.defaultSchema
	}

	var defaultSchema string
	if err := d.db.QueryRow(`SELECT current_schema()`).Scan(&defaultSchema); err != nil {
		return ""
	}
	d.defaultSchema = &defaultSchema
	return defaultSchema
}

func postgresBuildDSN(config database.Config) string {
	user := config.User
	password := config.Password
	database := config.DbName
	host := ""
	var options []string

	if config.Socket == "" {
		host = fmt.Sprintf("%s:%d", config.Host, config.Port)
	} else {
		// postgres://user:@%2Fvar%2Frun%2Fpostgresql/dbname would be rejected by the URL
		// parser, so the socket directory goes into the host option instead.
		options = append(options, fmt.Sprintf("host=%s", config.Socket))
	}

	if config.SslMode != "" {
		options = append(options, fmt.Sprintf("sslmode=%s", config.SslMode))
	} else if sslmode, ok := os.LookupEnv("PGSSLMODE"); ok {
		options = append(options, fmt.Sprintf("sslmode=%s", sslmode))
	}
	for _, env := range []struct{ name, option string }{
		{"PGSSLROOTCERT", "sslrootcert"},
		{"PGSSLCERT", "sslcert"},
		{"PGSSLKEY", "sslkey"},
	} {
		if value, ok := os.LookupEnv(env.name); ok {
			options = append(options, fmt.Sprintf("%s=%s", env.option, value))
		}
	}
	if config.TargetSchema != "" {
		options = append(options, "search_path="+url.QueryEscape(config.TargetSchema))
	}

	// `QueryEscape` instead of `PathEscape` so that colon can be escaped.
	return fmt.Sprintf("postgres://%s:%s@%s/%s?%s", url.QueryEscape(user), url.QueryEscape(password), host, database, strings.Join(options, "&"))
}
