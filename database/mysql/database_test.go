package mysql

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sqldef/entitysync/database"
	"github.com/sqldef/entitysync/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.tables").WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("post").AddRow("users"))
	columns := []string{"column_name", "column_type", "data_type", "is_nullable", "ordinal_position"}
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("app", "post").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id", "bigint", "bigint", "NO", 1).
			AddRow("author_id", "bigint", "bigint", "NO", 2).
			AddRow("title", "varchar(255)", "varchar", "YES", 3).
			AddRow("meta", "json", "json", "YES", 4))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("app", "users").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id", "bigint", "bigint", "NO", 1).
			AddRow("status", "varchar(255)", "varchar", "YES", 2))
	mock.ExpectQuery("constraint_name = 'PRIMARY'").WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("post", "id").
			AddRow("users", "id"))
	mock.ExpectQuery("referenced_table_name IS NOT NULL").WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "table_name", "column_name", "referenced_table_name", "referenced_column_name"}).
			AddRow("post_ibfk_1", "post", "author_id", "users", "id").
			AddRow("post_ibfk_2", "post", "id", "other", "a").
			AddRow("post_ibfk_2", "post", "title", "other", "b"))
	mock.ExpectQuery("tc.constraint_type = 'UNIQUE'").WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "table_name", "column_name"}).
			AddRow("post_author_id_title_key", "post", "author_id").
			AddRow("post_author_id_title_key", "post", "title"))
	mock.ExpectQuery("FROM information_schema.check_constraints").WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "table_name", "check_clause"}).
			AddRow("users_chk_1", "users", "(`status` in (_utf8mb4'active',_utf8mb4'banned'))").
			AddRow("users_chk_2", "users", "(1 = 1)"))
	mock.ExpectQuery("FROM information_schema.statistics").WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"index_name", "table_name", "column_name"}).
			AddRow("author_id", "post", "author_id").
			AddRow("post_title_meta_idx", "post", "title").
			AddRow("post_title_meta_idx", "post", "meta").
			AddRow("functional_idx", "post", ""))

	d := newDatabase(db, database.Config{DbName: "app"})
	loaded, err := d.LoadSchema()
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Empty(t, loaded.Sequences)
	assert.Equal(t, []string{"post", "users"}, loaded.TableOrder)
	assert.Equal(t, &schema.ColumnDef{Name: "title", Type: "varchar(255)", IsNullable: true, Ordinal: 3}, loaded.Tables["post"].Columns["title"])
	assert.True(t, loaded.Tables["post"].Columns["meta"].IsJSON)
	assert.Equal(t, schema.PrimaryKeyDef{Table: "post", Column: "id", ConstraintName: "PRIMARY"}, loaded.PrimaryKeys["post"])

	assert.Len(t, loaded.ForeignKeys, 1)
	assert.Equal(t, "post_ibfk_1", loaded.ForeignKeys[schema.ColumnKey{Table: "post", Column: "author_id"}].ConstraintName)
	assert.Equal(t, "post_author_id_title_key", loaded.Uniques[schema.NewColumnsKey("post", []string{"author_id", "title"})].Name)
	assert.Equal(t, map[schema.CheckKey]schema.CheckDef{
		schema.NewCheckKey("users", "status", []string{"active", "banned"}): {Name: "users_chk_1", Table: "users", Column: "status", ValidValues: []string{"active", "banned"}},
	}, loaded.Checks)
	assert.Equal(t, map[schema.ColumnsKey]schema.IndexDef{
		schema.NewColumnsKey("post", []string{"title", "meta"}): {Name: "post_title_meta_idx", Table: "post", Columns: []string{"title", "meta"}},
	}, loaded.Indexes)
}

func TestGetDefaultSchema(t *testing.T) {
	assert.Equal(t, "app", newDatabase(nil, database.Config{DbName: "app"}).GetDefaultSchema())
	assert.Equal(t, "tenant", newDatabase(nil, database.Config{DbName: "app", TargetSchema: "tenant"}).GetDefaultSchema())
}

func TestMysqlBuildDSN(t *testing.T) {
	dsn := mysqlBuildDSN(database.Config{DbName: "app", User: "root", Password: "secret", Host: "127.0.0.1", Port: 3306})
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/app", dsn)

	dsn = mysqlBuildDSN(database.Config{DbName: "app", User: "root", Socket: "/tmp/mysql.sock"})
	assert.Equal(t, "root@unix(/tmp/mysql.sock)/app", dsn)
}
