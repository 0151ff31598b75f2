package schema

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/sqldef/entitysync/util"
)

// Snapshot is the YAML form of an existing schema. It is what file databases load and
// what --export writes.
type Snapshot struct {
	Sequences []string        `yaml:"sequences,omitempty"`
	Tables    []TableSnapshot `yaml:"tables,omitempty"`
}

type TableSnapshot struct {
	Name        string               `yaml:"name"`
	Columns     []ColumnSnapshot     `yaml:"columns"`
	PrimaryKey  *PrimaryKeySnapshot  `yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKeySnapshot `yaml:"foreign_keys,omitempty"`
	Uniques     []ColumnsSnapshot    `yaml:"uniques,omitempty"`
	Checks      []CheckSnapshot      `yaml:"checks,omitempty"`
	Indexes     []ColumnsSnapshot    `yaml:"indexes,omitempty"`
}

type ColumnSnapshot struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
	JSON     bool   `yaml:"json,omitempty"`
	Sequence string `yaml:"sequence,omitempty"`
}

type PrimaryKeySnapshot struct {
	Column string `yaml:"column"`
	Name   string `yaml:"name,omitempty"`
}

type ForeignKeySnapshot struct {
	Column           string `yaml:"column"`
	ReferencesTable  string `yaml:"references_table"`
	ReferencesColumn string `yaml:"references_column"`
	Name             string `yaml:"name,omitempty"`
}

type ColumnsSnapshot struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
}

type CheckSnapshot struct {
	Name   string   `yaml:"name,omitempty"`
	Column string   `yaml:"column"`
	Values []string `yaml:"values"`
}

func ParseSnapshot(buf []byte) (*Snapshot, error) {
	var snapshot Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(buf), yaml.DisallowUnknownField())
	if err := dec.Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *Snapshot) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Schema converts the snapshot into an existing-side schema. Missing constraint names are
// filled with the names Postgres would have picked.
func (s *Snapshot) Schema() (*Schema, error) {
	result := NewSchema()
	if s == nil {
		return result, nil
	}

	for _, name := range s.Sequences {
		result.AddSequence(name)
	}
	for _, t := range s.Tables {
		table := NewTableDef(t.Name)
		if !result.AddTable(table) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTable, t.Name)
		}
		for i, c := range t.Columns {
			column := &ColumnDef{
				Name:           c.Name,
				Type:           c.Type,
				IsNullable:     c.Nullable,
				IsJSON:         c.JSON,
				SourceSequence: c.Sequence,
				Ordinal:        i + 1,
			}
			if !table.AddColumn(column) {
				return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateColumn, t.Name, c.Name)
			}
		}

		if pk := t.PrimaryKey; pk != nil {
			result.AddPrimaryKey(PrimaryKeyDef{Table: t.Name, Column: pk.Column, ConstraintName: defaultName(pk.Name, t.Name, nil, "pkey")})
		}
		for _, fk := range t.ForeignKeys {
			result.AddForeignKey(ForeignKeyDef{
				LocalTable:     t.Name,
				LocalColumn:    fk.Column,
				ForeignTable:   fk.ReferencesTable,
				ForeignColumn:  fk.ReferencesColumn,
				ConstraintName: defaultName(fk.Name, t.Name, []string{fk.Column}, "fkey"),
			})
		}
		for _, u := range t.Uniques {
			result.AddUnique(UniqueDef{Name: defaultName(u.Name, t.Name, u.Columns, "key"), Table: t.Name, Columns: u.Columns})
		}
		for _, c := range t.Checks {
			result.AddCheck(CheckDef{Name: defaultName(c.Name, t.Name, []string{c.Column}, "check"), Table: t.Name, Column: c.Column, ValidValues: c.Values})
		}
		for _, i := range t.Indexes {
			result.AddIndex(IndexDef{Name: defaultName(i.Name, t.Name, i.Columns, "idx"), Table: t.Name, Columns: i.Columns})
		}
	}
	return result, nil
}

// NewSnapshot captures a schema. Tables keep their order; keyed objects are sorted.
func NewSnapshot(s *Schema) *Snapshot {
	snapshot := &Snapshot{Sequences: s.SortedSequences()}

	index := map[string]int{}
	for _, table := range s.OrderedTables() {
		t := TableSnapshot{Name: table.Name}
		for _, column := range table.OrderedColumns() {
			t.Columns = append(t.Columns, ColumnSnapshot{
				Name:     column.Name,
				Type:     column.Type,
				Nullable: column.IsNullable,
				JSON:     column.IsJSON,
				Sequence: column.SourceSequence,
			})
		}
		if pk, ok := s.PrimaryKeys[table.Name]; ok {
			t.PrimaryKey = &PrimaryKeySnapshot{Column: pk.Column, Name: pk.ConstraintName}
		}
		index[table.Name] = len(snapshot.Tables)
		snapshot.Tables = append(snapshot.Tables, t)
	}

	owner := func(table string) *TableSnapshot {
		if i, ok := index[table]; ok {
			return &snapshot.Tables[i]
		}
		return nil
	}
	for _, fk := range util.SortedMapIter(s.ForeignKeys, ColumnKey.Compare) {
		if t := owner(fk.LocalTable); t != nil {
			t.ForeignKeys = append(t.ForeignKeys, ForeignKeySnapshot{
				Column:           fk.LocalColumn,
				ReferencesTable:  fk.ForeignTable,
				ReferencesColumn: fk.ForeignColumn,
				Name:             fk.ConstraintName,
			})
		}
	}
	for _, u := range util.SortedMapIter(s.Uniques, ColumnsKey.Compare) {
		if t := owner(u.Table); t != nil {
			t.Uniques = append(t.Uniques, ColumnsSnapshot{Name: u.Name, Columns: u.Columns})
		}
	}
	for _, c := range util.SortedMapIter(s.Checks, CheckKey.Compare) {
		if t := owner(c.Table); t != nil {
			t.Checks = append(t.Checks, CheckSnapshot{Name: c.Name, Column: c.Column, Values: c.ValidValues})
		}
	}
	for _, i := range util.SortedMapIter(s.Indexes, ColumnsKey.Compare) {
		if t := owner(i.Table); t != nil {
			t.Indexes = append(t.Indexes, ColumnsSnapshot{Name: i.Name, Columns: i.Columns})
		}
	}
	return snapshot
}

// AsExisting returns the schema a database would report after the model was applied:
// model-only attributes are dropped and constraint names are filled in.
func AsExisting(model *Schema) *Schema {
	existing, err := NewSnapshot(model).Schema()
	if err != nil {
		// The model was built with unique table and column names.
		panic(err)
	}
	return existing
}

func defaultName(name, table string, columns []string, suffix string) string {
	if name != "" {
		return name
	}
	if len(columns) == 0 {
		return table + "_" + suffix
	}
	return util.BuildConstraintName(table, columns, suffix)
}
