package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "current.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
sequences: [t_id_seq]
tables:
  - name: t
    columns:
      - {name: id, type: bigint, sequence: t_id_seq}
    primary_key: {column: id}
`), 0o644))

	db := NewDatabase(path)
	defer db.Close()
	assert.Nil(t, db.DB())

	loaded, err := db.LoadSchema()
	require.NoError(t, err)
	assert.True(t, loaded.HasSequence("t_id_seq"))
	assert.Equal(t, "t_pkey", loaded.PrimaryKeys["t"].ConstraintName)

	_, err = NewDatabase(filepath.Join(t.TempDir(), "missing.yml")).LoadSchema()
	assert.Error(t, err)
}
