package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildModelColumns(t *testing.T) {
	model := buildPostgresModel(t, blogEntities()...)

	assert.Equal(t, []string{"users", "post"}, model.TableOrder)
	assert.Equal(t, []string{"post_id_seq", "users_id_seq"}, model.SortedSequences())

	post, ok := model.Table("post")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "title", "published_at", "author_id", "metadata"}, post.ColumnOrder)

	id := post.Columns["id"]
	assert.True(t, id.IsPrimaryKey())
	assert.False(t, id.IsNullable)
	assert.Equal(t, "post_id_seq", id.SourceSequence)

	author := post.Columns["author_id"]
	assert.Equal(t, "bigint", author.Type)
	assert.False(t, author.IsNullable)
	assert.True(t, author.Model.ForeignKey)

	metadata := post.Columns["metadata"]
	assert.True(t, metadata.IsJSON)
	assert.Equal(t, "json", metadata.Type)

	assert.Equal(t, PrimaryKeyDef{Table: "post", Column: "id"}, model.PrimaryKeys["post"])
	assert.Equal(t, ForeignKeyDef{LocalTable: "post", LocalColumn: "author_id", ForeignTable: "users", ForeignColumn: "id"},
		model.ForeignKeys[ColumnKey{Table: "post", Column: "author_id"}])
	assert.Contains(t, model.Uniques, NewColumnsKey("users", []string{"email"}))
	assert.Contains(t, model.Uniques, NewColumnsKey("post", []string{"author_id", "title"}))
	assert.Contains(t, model.Checks, NewCheckKey("users", "status", []string{"banned", "active"}))
	assert.Contains(t, model.Indexes, NewColumnsKey("post", []string{"published_at"}))
}

func TestBuildModelNullability(t *testing.T) {
	model := buildPostgresModel(t, Entity{
		Name: "n",
		Fields: []Field{
			{Name: "id", Type: "int64", ID: true},
			{Name: "count", Type: "int32"},
			{Name: "maybeCount", Type: "*int32"},
			{Name: "label", Type: "string"},
			{Name: "required", Type: "string", Nullable: boolPtr(false)},
			{Name: "loose", Type: "int64", Nullable: boolPtr(true)},
			{Name: "parent", References: "n"},
		},
	})

	columns := model.Tables["n"].Columns
	assert.False(t, columns["id"].IsNullable)
	assert.False(t, columns["count"].IsNullable)
	assert.True(t, columns["maybe_count"].IsNullable)
	assert.True(t, columns["label"].IsNullable)
	assert.False(t, columns["required"].IsNullable)
	assert.True(t, columns["loose"].IsNullable)
	assert.True(t, columns["parent_id"].IsNullable)
}

func TestBuildModelSequences(t *testing.T) {
	model := buildPostgresModel(t,
		Entity{Name: "implicit", Fields: []Field{{Name: "id", Type: "int64"}}},
		Entity{Name: "marked", Fields: []Field{{Name: "id", Type: "int64", ID: true}}},
		Entity{Name: "named", Fields: []Field{{Name: "id", Type: "int64", ID: true, Generated: GenerationSequence, Generator: "shared_seq"}}},
		Entity{Name: "other", Fields: []Field{
			{Name: "key", Type: "int64", ID: true, Generated: GenerationAuto, Generator: "shared_seq"},
			{Name: "counter", Type: "int64", Generated: GenerationAuto},
		}},
	)

	assert.Equal(t, []string{"implicit_id_seq", "other_counter_seq", "shared_seq"}, model.SortedSequences())
	assert.Equal(t, "implicit_id_seq", model.Tables["implicit"].Columns["id"].SourceSequence)
	assert.Empty(t, model.Tables["marked"].Columns["id"].SourceSequence)
	assert.Equal(t, "shared_seq", model.Tables["named"].Columns["id"].SourceSequence)
	assert.Equal(t, "shared_seq", model.Tables["other"].Columns["key"].SourceSequence)
	assert.False(t, model.Tables["other"].Columns["counter"].IsPrimaryKey())
}

func TestBuildModelSequenceNamesFoldToLowerCase(t *testing.T) {
	model := buildPostgresModel(t,
		Entity{Name: "User", Table: "Users", Fields: []Field{{Name: "id", Type: "int64", ID: true, Generated: GenerationAuto}}},
		Entity{Name: "Audit", Fields: []Field{{Name: "id", Type: "int64", ID: true, Generated: GenerationSequence, Generator: "Audit_Seq"}}},
	)

	assert.Equal(t, []string{"audit_seq", "users_id_seq"}, model.SortedSequences())
	assert.Equal(t, "users_id_seq", model.Tables["Users"].Columns["id"].SourceSequence)
	assert.Equal(t, "audit_seq", model.Tables["audit"].Columns["id"].SourceSequence)

	// A database that reports the folded name needs no changes.
	assert.True(t, GenerateIdempotentDDLs(PostgresDialect{}, model, AsExisting(model), AllDrops()).Empty())
}

func TestBuildModelMysqlIdentity(t *testing.T) {
	model, err := BuildModel(MysqlDialect{}, Entity{
		Name: "t",
		Fields: []Field{
			{Name: "id", Type: "int64", ID: true, Generated: GenerationAuto},
			{Name: "n", Type: "int64", Generated: GenerationIdentity},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, model.Sequences)
	assert.True(t, model.Tables["t"].Columns["id"].IsIdentity())
	assert.True(t, model.Tables["t"].Columns["n"].IsIdentity())

	_, err = BuildModel(MysqlDialect{}, Entity{
		Name:   "t",
		Fields: []Field{{Name: "id", Type: "int64", ID: true, Generated: GenerationSequence}},
	})
	assert.ErrorIs(t, err, ErrSequenceUnsupported)
}

func TestBuildModelErrors(t *testing.T) {
	tests := []struct {
		name     string
		entities []Entity
		err      error
		message  string
	}{
		{
			name: "unknown reference",
			entities: []Entity{
				{Name: "Post", Fields: []Field{{Name: "id", Type: "int64", ID: true}, {Name: "author", References: "User"}}},
			},
			err:     ErrUnknownReference,
			message: "Post.author: reference target not registered: User",
		},
		{
			name: "reference without primary key",
			entities: []Entity{
				{Name: "Tag", Fields: []Field{{Name: "label", Type: "string"}}},
				{Name: "Post", Fields: []Field{{Name: "id", Type: "int64", ID: true}, {Name: "tag", References: "Tag"}}},
			},
			err:     ErrReferenceWithoutPrimaryKey,
			message: "Post.tag: reference target does not declare a primary key: Tag",
		},
		{
			name: "identity on postgres",
			entities: []Entity{
				{Name: "T", Fields: []Field{{Name: "id", Type: "int64", ID: true, Generated: GenerationIdentity}}},
			},
			err:     ErrIdentityUnsupported,
			message: "T.id: identity strategy not supported",
		},
		{
			name: "table strategy",
			entities: []Entity{
				{Name: "T", Fields: []Field{{Name: "id", Type: "int64", ID: true, Generated: GenerationTable}}},
			},
			err: ErrTableStrategyUnsupported,
		},
		{
			name: "unknown strategy",
			entities: []Entity{
				{Name: "T", Fields: []Field{{Name: "id", Type: "int64", ID: true, Generated: "uuid"}}},
			},
			err: ErrUnknownStrategy,
		},
		{
			name: "unsupported type",
			entities: []Entity{
				{Name: "T", Fields: []Field{{Name: "id", Type: "int64", ID: true}, {Name: "shape", Type: "polygon"}}},
			},
			err:     ErrUnsupportedType,
			message: `T.shape: unsupported type "polygon"`,
		},
		{
			name: "duplicate column",
			entities: []Entity{
				{Name: "T", Fields: []Field{{Name: "id", Type: "int64", ID: true}, {Name: "Id", Column: "id", Type: "int64"}}},
			},
			err: ErrDuplicateColumn,
		},
		{
			name: "duplicate table",
			entities: []Entity{
				{Name: "A", Table: "t", Fields: []Field{{Name: "id", Type: "int64", ID: true}}},
				{Name: "B", Table: "t", Fields: []Field{{Name: "id", Type: "int64", ID: true}}},
			},
			err: ErrDuplicateTable,
		},
		{
			name: "unique constraint on unknown column",
			entities: []Entity{
				{Name: "T", Fields: []Field{{Name: "id", Type: "int64", ID: true}}, UniqueConstraints: [][]string{{"id", "missing"}}},
			},
			err:     ErrUnknownColumn,
			message: "T: unknown column: unique constraint on id, missing",
		},
		{
			name: "index on unknown column",
			entities: []Entity{
				{Name: "T", Fields: []Field{{Name: "id", Type: "int64", ID: true}}, Indexes: [][]string{{"missing"}}},
			},
			err: ErrUnknownColumn,
		},
		{
			name: "missing entity name",
			entities: []Entity{
				{Table: "t", Fields: []Field{{Name: "id", Type: "int64", ID: true}}},
			},
			err:     ErrMissingEntityName,
			message: "table t: entity name is required",
		},
		{
			name: "duplicate entity",
			entities: []Entity{
				{Name: "User", Table: "users", Fields: []Field{{Name: "id", Type: "int64", ID: true}}},
				{Name: "User", Table: "accounts", Fields: []Field{{Name: "id", Type: "int64", ID: true}}},
			},
			err:     ErrDuplicateEntity,
			message: "User: duplicate entity: User",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildModel(PostgresDialect{}, Descriptors(tt.entities)...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)

			var configErr *ConfigurationError
			assert.True(t, errors.As(err, &configErr))
			if tt.message != "" {
				assert.Equal(t, tt.message, err.Error())
			}
		})
	}
}

func TestBuildModelIdentityReference(t *testing.T) {
	_, err := BuildModel(MysqlDialect{},
		Entity{Name: "A", Fields: []Field{{Name: "id", Type: "int64", ID: true}}},
		Entity{Name: "B", Fields: []Field{
			{Name: "id", Type: "int64", ID: true},
			{Name: "a", References: "A", Generated: GenerationIdentity},
		}},
	)
	assert.ErrorIs(t, err, ErrIdentityReference)
}

type describedEntity struct {
	name string
}

func (d describedEntity) Describe() Entity {
	return Entity{Name: d.name, Fields: []Field{{Name: "id", Type: "int64", ID: true}}}
}

func TestBuildModelFromDescriptor(t *testing.T) {
	model, err := BuildModel(PostgresDialect{}, describedEntity{name: "AuditLog"})
	require.NoError(t, err)
	_, ok := model.Table("audit_log")
	assert.True(t, ok)
}

func TestParseEntities(t *testing.T) {
	entities, err := ParseEntities([]byte(`
- name: User
  table: users
  fields:
    - name: id
      type: int64
      id: true
      generated: auto
    - name: nickName
      type: "*string"
      unique: true
  indexes:
    - [nick_name]
`))
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "users", entities[0].TableName())
	assert.Equal(t, GenerationAuto, entities[0].Fields[0].Generated)
	assert.Equal(t, "nick_name", entities[0].Fields[1].ColumnName())
	assert.Equal(t, [][]string{{"nick_name"}}, entities[0].Indexes)

	_, err = ParseEntities([]byte(`
- name: User
  colour: blue
`))
	assert.Error(t, err)
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "created_at", Field{Name: "createdAt"}.ColumnName())
	assert.Equal(t, "owner_id", Field{Name: "owner", References: "User"}.ColumnName())
	assert.Equal(t, "author", Field{Name: "owner", Column: "author", References: "User"}.ColumnName())
}

func TestIsPrimaryKeyOnExistingColumnPanics(t *testing.T) {
	column := &ColumnDef{Name: "id"}
	assert.Panics(t, func() { column.IsPrimaryKey() })
	assert.False(t, column.IsIdentity())
}
