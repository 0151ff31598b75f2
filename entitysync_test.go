package entitysync_test

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sqldef/entitysync"
	"github.com/sqldef/entitysync/schema"
	"github.com/sqldef/entitysync/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDatabase struct {
	db     *sql.DB
	schema *schema.Schema
	err    error
	loaded int
}

func (s *stubDatabase) LoadSchema() (*schema.Schema, error) {
	s.loaded++
	if s.err != nil {
		return nil, s.err
	}
	return s.schema, nil
}
func (s *stubDatabase) DB() *sql.DB              { return s.db }
func (s *stubDatabase) Close() error             { return nil }
func (s *stubDatabase) GetDefaultSchema() string { return "public" }

var tagEntity = schema.Entity{
	Name: "Tag",
	Fields: []schema.Field{
		{Name: "id", Type: "int64", ID: true},
		{Name: "label", Type: "string"},
	},
}

func TestSyncDryRun(t *testing.T) {
	db := &stubDatabase{schema: schema.NewSchema()}
	logger := &testutil.StringLogger{}
	var changes []string

	plan, err := entitysync.Sync(schema.GeneratorModePostgres, db, []schema.Descriptor{tagEntity}, &entitysync.Options{
		DryRun:      true,
		BeforeApply: "SET ROLE owner;",
		Logger:      logger,
		ChangeLog:   func(s string) { changes = append(changes, s) },
	})
	require.NoError(t, err)
	assert.Len(t, plan.DDLs, 1)
	assert.Equal(t, []string{"Added tables tag"}, changes)
	assert.Equal(t, "-- dry run --\nSET ROLE owner;\n"+plan.String(), logger.String())
}

func TestSyncDryRunLeavesDatabaseUntouched(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := &stubDatabase{db: sqlDB, schema: schema.NewSchema()}

	for _, options := range []*entitysync.Options{
		{DryRun: true, Logger: &testutil.StringLogger{}},
		{CurrentFile: "current.yml", Logger: &testutil.StringLogger{}},
	} {
		plan, err := entitysync.Sync(schema.GeneratorModePostgres, db, []schema.Descriptor{tagEntity}, options)
		require.NoError(t, err)
		assert.Len(t, plan.DDLs, 1)
	}

	// No transaction was opened on the live connection, and it is still usable.
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, sqlDB.Ping())
}

func TestSyncApplies(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer sqlDB.Close()

	existing := schema.NewSchema()
	table := schema.NewTableDef("tag")
	table.AddColumn(&schema.ColumnDef{Name: "id", Type: "bigint", Ordinal: 1})
	existing.AddTable(table)
	existing.AddPrimaryKey(schema.PrimaryKeyDef{Table: "tag", Column: "id", ConstraintName: "tag_pkey"})
	db := &stubDatabase{db: sqlDB, schema: existing}

	mock.ExpectBegin()
	mock.ExpectExec(`ALTER TABLE "tag" ADD COLUMN "label" character varying`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	logger := &testutil.StringLogger{}
	plan, err := entitysync.Sync(schema.GeneratorModePostgres, db, []schema.Descriptor{tagEntity}, &entitysync.Options{
		Logger:    logger,
		ChangeLog: func(string) {},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "tag" ADD COLUMN "label" character varying`}, plan.DDLs)
	assert.Equal(t, "-- Apply --\nALTER TABLE \"tag\" ADD COLUMN \"label\" character varying;\n", logger.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncNothingModified(t *testing.T) {
	model, err := schema.BuildModel(schema.PostgresDialect{}, tagEntity)
	require.NoError(t, err)
	db := &stubDatabase{schema: schema.AsExisting(model)}
	logger := &testutil.StringLogger{}

	plan, err := entitysync.Sync(schema.GeneratorModePostgres, db, []schema.Descriptor{tagEntity}, &entitysync.Options{Logger: logger})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, "-- Nothing is modified --\n", logger.String())
}

func TestSyncConfigurationErrorBeforeLoading(t *testing.T) {
	db := &stubDatabase{schema: schema.NewSchema()}
	post := schema.Entity{
		Name: "Post",
		Fields: []schema.Field{
			{Name: "id", Type: "int64", ID: true},
			{Name: "author", References: "User"},
		},
	}

	_, err := entitysync.Sync(schema.GeneratorModePostgres, db, []schema.Descriptor{post}, &entitysync.Options{Logger: &testutil.StringLogger{}})
	assert.ErrorIs(t, err, schema.ErrUnknownReference)
	var configErr *schema.ConfigurationError
	assert.True(t, errors.As(err, &configErr))
	assert.Zero(t, db.loaded)
}

func TestSyncLoadError(t *testing.T) {
	loadErr := errors.New("connection refused")
	db := &stubDatabase{err: loadErr}

	_, err := entitysync.Sync(schema.GeneratorModePostgres, db, []schema.Descriptor{tagEntity}, &entitysync.Options{Logger: &testutil.StringLogger{}})
	assert.ErrorIs(t, err, loadErr)
}

func TestRunExport(t *testing.T) {
	logger := &testutil.StringLogger{}
	err := entitysync.Run(schema.GeneratorModePostgres, &stubDatabase{schema: schema.NewSchema()}, &entitysync.Options{Export: true, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, "# No table exists\n", logger.String())

	model, err := schema.BuildModel(schema.PostgresDialect{}, tagEntity)
	require.NoError(t, err)
	logger = &testutil.StringLogger{}
	err = entitysync.Run(schema.GeneratorModePostgres, &stubDatabase{schema: schema.AsExisting(model)}, &entitysync.Options{Export: true, Logger: logger})
	require.NoError(t, err)

	snapshot, err := schema.ParseSnapshot([]byte(logger.String()))
	require.NoError(t, err)
	exported, err := snapshot.Schema()
	require.NoError(t, err)
	assert.True(t, schema.GenerateIdempotentDDLs(schema.PostgresDialect{}, model, exported, schema.AllDrops()).Empty())
}

func TestRunReadsEntitiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
- name: Tag
  fields:
    - {name: id, type: int64, id: true}
`), 0o644))

	logger := &testutil.StringLogger{}
	err := entitysync.Run(schema.GeneratorModeMysql, &stubDatabase{schema: schema.NewSchema()}, &entitysync.Options{
		EntitiesFile: path,
		DryRun:       true,
		Logger:       logger,
		ChangeLog:    func(string) {},
	})
	require.NoError(t, err)
	assert.Contains(t, logger.String(), "CREATE TABLE `tag`")

	err = entitysync.Run(schema.GeneratorModeMysql, &stubDatabase{}, &entitysync.Options{EntitiesFile: filepath.Join(t.TempDir(), "missing.yml")})
	assert.Error(t, err)
}
