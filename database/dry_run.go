package database

import (
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"

	"github.com/sqldef/entitysync/schema"
)

// DryRunDatabase loads the schema from the wrapped database but runs DDLs against a driver
// that accepts and discards every statement.
type DryRunDatabase struct {
	wrapped  Database
	dryRunDB *sql.DB
}

var _ Database = (*DryRunDatabase)(nil)

const dryRunDriverName = "dry-run"

var registerDryRunDriver sync.Once

func NewDryRunDatabase(db Database) (*DryRunDatabase, error) {
	registerDryRunDriver.Do(func() {
		sql.Register(dryRunDriverName, dryRunDriver{})
	})

	dryRunDB, err := sql.Open(dryRunDriverName, "dry-run")
	if err != nil {
		return nil, err
	}

	return &DryRunDatabase{
		wrapped:  db,
		dryRunDB: dryRunDB,
	}, nil
}

func (d *DryRunDatabase) LoadSchema() (*schema.Schema, error) {
	return d.wrapped.LoadSchema()
}

func (d *DryRunDatabase) DB() *sql.DB {
	return d.dryRunDB
}

// Close releases the discarding connection only. The wrapped database stays open for its owner.
func (d *DryRunDatabase) Close() error {
	return d.dryRunDB.Close()
}

func (d *DryRunDatabase) GetDefaultSchema() string {
	return d.wrapped.GetDefaultSchema()
}

type dryRunDriver struct{}

func (dryRunDriver) Open(name string) (driver.Conn, error) {
	return dryRunConn{}, nil
}

type dryRunConn struct{}

func (dryRunConn) Prepare(query string) (driver.Stmt, error) {
	return dryRunStmt{}, nil
}

func (dryRunConn) Close() error {
	return nil
}

func (dryRunConn) Begin() (driver.Tx, error) {
	return dryRunTx{}, nil
}

type dryRunTx struct{}

func (dryRunTx) Commit() error {
	return nil
}

func (dryRunTx) Rollback() error {
	return nil
}

type dryRunStmt struct{}

func (dryRunStmt) Close() error {
	return nil
}

func (dryRunStmt) NumInput() int {
	return -1
}

func (dryRunStmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.RowsAffected(0), nil
}

func (dryRunStmt) Query(args []driver.Value) (driver.Rows, error) {
	return dryRunRows{}, nil
}

type dryRunRows struct{}

func (dryRunRows) Columns() []string {
	return []string{}
}

func (dryRunRows) Close() error {
	return nil
}

func (dryRunRows) Next(dest []driver.Value) error {
	return io.EOF
}
