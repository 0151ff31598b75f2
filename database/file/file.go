// Package file is a pseudo database backed by a YAML schema snapshot, for offline comparison.
package file

import (
	"database/sql"

	"github.com/sqldef/entitysync"
	"github.com/sqldef/entitysync/database"
	"github.com/sqldef/entitysync/schema"
)

type FileDatabase struct {
	file string
}

var _ database.Database = (*FileDatabase)(nil)

func NewDatabase(file string) *FileDatabase {
	return &FileDatabase{
		file: file,
	}
}

func (f *FileDatabase) LoadSchema() (*schema.Schema, error) {
	buf, err := entitysync.ReadFile(f.file)
	if err != nil {
		return nil, err
	}
	snapshot, err := schema.ParseSnapshot(buf)
	if err != nil {
		return nil, err
	}
	return snapshot.Schema()
}

// DB is nil: a snapshot can only be compared against, never applied to.
func (f *FileDatabase) DB() *sql.DB {
	return nil
}

func (f *FileDatabase) Close() error {
	return nil
}

func (f *FileDatabase) GetDefaultSchema() string {
	return ""
}
