package testutil

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/sqldef/entitysync"
	"github.com/sqldef/entitysync/database"
	"github.com/sqldef/entitysync/schema"
	"github.com/sqldef/entitysync/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestCase struct {
	Entities   []schema.Entity  `yaml:"entities"`
	Current    *schema.Snapshot `yaml:"current"` // default: empty schema
	Up         *string          `yaml:"up"`      // expected DDL for current → entities
	Changes    []string         `yaml:"changes"` // expected change summaries, in order
	Error      *string          `yaml:"error"`   // expected configuration error
	EnableDrop *bool            `yaml:"enable_drop"`
}

func (t TestCase) policy() schema.Policy {
	if t.EnableDrop == nil || *t.EnableDrop {
		return schema.AllDrops()
	}
	return schema.Policy{}
}

func (t TestCase) generatorConfig() database.GeneratorConfig {
	policy := t.policy()
	return database.GeneratorConfig{
		DropUnusedSequences: policy.DropUnusedSequences,
		DropUnusedTables:    policy.DropUnusedTables,
		DropUnusedColumns:   policy.DropUnusedColumns,
	}
}

func init() {
	util.InitSlog()

	// Keep change summaries out of test output unless LOG_LEVEL asks for them.
	if os.Getenv("LOG_LEVEL") == "" {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
		slog.SetDefault(slog.New(handler))
	}
}

func ReadTests(pattern string) (map[string]TestCase, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	ret := map[string]TestCase{}
	testFileMap := map[string]string{}

	for _, file := range files {
		var tests map[string]*TestCase

		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		dec := yaml.NewDecoder(bytes.NewReader(buf), yaml.DisallowUnknownField())
		if err := dec.Decode(&tests); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}

		for name, test := range tests {
			if test.Up == nil && test.Error == nil && test.Changes == nil {
				return nil, fmt.Errorf("%s: test case '%s' expects nothing: specify 'up', 'changes' or 'error'", file, name)
			}
			if existingFile, ok := testFileMap[name]; ok {
				return nil, fmt.Errorf("duplicate test case name '%s': defined in both '%s' and '%s'", name, existingFile, file)
			}
			testFileMap[name] = file
			ret[name] = *test
		}
	}

	return ret, nil
}

// RunOfflineTest diffs the test's entities against its current snapshot without a database,
// then checks that the entities are idempotent against their own schema.
func RunOfflineTest(t *testing.T, test TestCase, mode schema.GeneratorMode) {
	t.Helper()

	dialect := schema.NewDialect(mode)
	model, err := schema.BuildModel(dialect, schema.Descriptors(test.Entities)...)
	if test.Error != nil {
		if assert.Error(t, err, "expected error: %s", *test.Error) {
			assert.Equal(t, *test.Error, err.Error())
		}
		return
	}
	require.NoError(t, err)

	existing, err := test.Current.Schema()
	require.NoError(t, err)

	plan := schema.GenerateIdempotentDDLs(dialect, model, existing, test.policy())
	assertPlan(t, test, plan)

	plan = schema.GenerateIdempotentDDLs(dialect, model, schema.AsExisting(model), schema.AllDrops())
	if !plan.Empty() {
		t.Errorf("entities are not idempotent. Expected no changes when comparing them to their own schema, but got:\n```\n%s```", plan.String())
	}
}

// RunTest applies the test's current snapshot to db, synchronizes the entities and then checks
// that a second synchronization is a no-op. Every table and sequence in db is dropped first.
func RunTest(t *testing.T, db database.Database, test TestCase, mode schema.GeneratorMode) {
	t.Helper()

	dialect := schema.NewDialect(mode)
	resetDatabase(t, db, dialect)

	current, err := test.Current.Schema()
	require.NoError(t, err)
	setup := schema.GenerateIdempotentDDLs(dialect, current, schema.NewSchema(), schema.Policy{})
	require.NoError(t, database.RunDDLs(db, setup.DDLs, "", database.NullLogger{}))

	options := &entitysync.Options{
		Config:    test.generatorConfig(),
		Logger:    database.NullLogger{},
		ChangeLog: func(string) {},
	}
	plan, err := entitysync.Sync(mode, db, schema.Descriptors(test.Entities), options)
	if test.Error != nil {
		if assert.Error(t, err, "expected error: %s", *test.Error) {
			assert.Equal(t, *test.Error, err.Error())
		}
		return
	}
	require.NoError(t, err)
	assertPlan(t, test, plan)

	plan, err = entitysync.Sync(mode, db, schema.Descriptors(test.Entities), options)
	require.NoError(t, err)
	if !plan.Empty() {
		t.Errorf("second synchronization is not a no-op:\n```\n%s```", plan.String())
	}
}

func assertPlan(t *testing.T, test TestCase, plan schema.Plan) {
	t.Helper()

	if test.Up != nil {
		assert.Equal(t, strings.TrimSpace(*test.Up), strings.TrimSpace(plan.String()))
	}
	if test.Changes != nil {
		assert.Equal(t, test.Changes, util.TransformSlice(plan.Summaries, schema.Summary.String))
	}
}

func resetDatabase(t *testing.T, db database.Database, dialect schema.Dialect) {
	t.Helper()

	existing, err := db.LoadSchema()
	require.NoError(t, err)
	plan := schema.GenerateIdempotentDDLs(dialect, schema.NewSchema(), existing, schema.AllDrops())
	require.NoError(t, database.RunDDLs(db, plan.DDLs, "", database.NullLogger{}))
}

// StringLogger collects applied statements for comparison.
type StringLogger struct {
	buf strings.Builder
}

func (l *StringLogger) Print(v ...any) {
	l.buf.WriteString(fmt.Sprint(v...))
}

func (l *StringLogger) Printf(format string, v ...any) {
	l.buf.WriteString(fmt.Sprintf(format, v...))
}

func (l *StringLogger) Println(v ...any) {
	l.buf.WriteString(fmt.Sprintln(v...))
}

func (l *StringLogger) String() string {
	return l.buf.String()
}
