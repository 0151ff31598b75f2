package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogSnapshot = `
sequences: [users_id_seq]
tables:
  - name: users
    columns:
      - {name: id, type: bigint, sequence: users_id_seq}
      - {name: email, type: character varying, nullable: true}
    primary_key: {column: id}
    uniques:
      - {name: users_email_key, columns: [email]}
  - name: posts
    columns:
      - {name: id, type: bigint}
      - {name: user_id, type: bigint}
      - {name: state, type: character varying, nullable: true}
    primary_key: {column: id, name: posts_pk}
    foreign_keys:
      - {column: user_id, references_table: users, references_column: id}
    checks:
      - {column: state, values: [draft, live]}
    indexes:
      - {columns: [user_id, state]}
`

func TestSnapshotSchema(t *testing.T) {
	snapshot, err := ParseSnapshot([]byte(blogSnapshot))
	require.NoError(t, err)
	s, err := snapshot.Schema()
	require.NoError(t, err)

	assert.True(t, s.HasSequence("users_id_seq"))
	assert.Equal(t, []string{"users", "posts"}, s.TableOrder)

	email := s.Tables["users"].Columns["email"]
	assert.Equal(t, &ColumnDef{Name: "email", Type: "character varying", IsNullable: true, Ordinal: 2}, email)
	assert.Equal(t, "users_id_seq", s.Tables["users"].Columns["id"].SourceSequence)

	assert.Equal(t, "users_pkey", s.PrimaryKeys["users"].ConstraintName)
	assert.Equal(t, "posts_pk", s.PrimaryKeys["posts"].ConstraintName)
	assert.Equal(t, "posts_user_id_fkey", s.ForeignKeys[ColumnKey{Table: "posts", Column: "user_id"}].ConstraintName)
	assert.Equal(t, "posts_state_check", s.Checks[NewCheckKey("posts", "state", []string{"live", "draft"})].Name)
	assert.Equal(t, "posts_user_id_state_idx", s.Indexes[NewColumnsKey("posts", []string{"user_id", "state"})].Name)
}

func TestSnapshotRoundTrip(t *testing.T) {
	snapshot, err := ParseSnapshot([]byte(blogSnapshot))
	require.NoError(t, err)
	s, err := snapshot.Schema()
	require.NoError(t, err)

	buf, err := NewSnapshot(s).Marshal()
	require.NoError(t, err)
	reparsed, err := ParseSnapshot(buf)
	require.NoError(t, err)
	again, err := reparsed.Schema()
	require.NoError(t, err)

	assert.Equal(t, s, again)
}

func TestSnapshotErrors(t *testing.T) {
	_, err := ParseSnapshot([]byte("tables:\n  - name: t\n    colums: []\n"))
	assert.Error(t, err)

	snapshot := &Snapshot{Tables: []TableSnapshot{{Name: "t"}, {Name: "t"}}}
	_, err = snapshot.Schema()
	assert.ErrorIs(t, err, ErrDuplicateTable)

	snapshot = &Snapshot{Tables: []TableSnapshot{{Name: "t", Columns: []ColumnSnapshot{{Name: "a"}, {Name: "a"}}}}}
	_, err = snapshot.Schema()
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	s, err := (*Snapshot)(nil).Schema()
	require.NoError(t, err)
	assert.Empty(t, s.Tables)
}

func TestAsExisting(t *testing.T) {
	model := buildPostgresModel(t, blogEntities()...)
	existing := AsExisting(model)

	for _, table := range existing.OrderedTables() {
		for _, column := range table.OrderedColumns() {
			assert.Nil(t, column.Model)
		}
	}
	assert.Equal(t, "post_pkey", existing.PrimaryKeys["post"].ConstraintName)
	assert.Equal(t, "users_email_key", existing.Uniques[NewColumnsKey("users", []string{"email"})].Name)
}
