// Package schema holds the schema model shared by the desired (model) side and the existing
// (database) side, the builder that derives the model from entity descriptors, the dialect
// renderers and the reconciliation engine.
package schema

import (
	"fmt"
	"slices"
)

// ColumnDef is a column of either snapshot. Model is set only for model-side columns.
type ColumnDef struct {
	Name       string
	Type       string
	IsNullable bool
	IsJSON     bool

	// SourceSequence names the sequence supplying the column default, empty when none.
	SourceSequence string

	// DefinitionOverride is a raw column definition. Overridden columns are never altered.
	DefinitionOverride string

	// Ordinal is the 1-based physical position, known only for existing columns.
	Ordinal int

	Model *ModelAttributes
}

// ModelAttributes are only known for columns derived from entity descriptors.
type ModelAttributes struct {
	PrimaryKey bool
	Identity   bool
	Unique     bool
	ForeignKey bool
}

// IsPrimaryKey reports whether the model designates this column as primary key.
// Existing columns do not know this, and asking them is a programming error.
func (c *ColumnDef) IsPrimaryKey() bool {
	if c.Model == nil {
		panic(fmt.Sprintf("primary key flag is unknown for existing column %q", c.Name))
	}
	return c.Model.PrimaryKey
}

// IsIdentity reports whether the column is generated by the database itself.
func (c *ColumnDef) IsIdentity() bool {
	return c.Model != nil && c.Model.Identity
}

type TableDef struct {
	Name        string
	Columns     map[string]*ColumnDef
	ColumnOrder []string
}

func NewTableDef(name string) *TableDef {
	return &TableDef{
		Name:    name,
		Columns: map[string]*ColumnDef{},
	}
}

// AddColumn appends a column. It returns false when the name is already taken.
func (t *TableDef) AddColumn(column *ColumnDef) bool {
	if _, ok := t.Columns[column.Name]; ok {
		return false
	}
	t.Columns[column.Name] = column
	t.ColumnOrder = append(t.ColumnOrder, column.Name)
	return true
}

func (t *TableDef) Column(name string) (*ColumnDef, bool) {
	column, ok := t.Columns[name]
	return column, ok
}

// OrderedColumns returns the columns in ColumnOrder.
func (t *TableDef) OrderedColumns() []*ColumnDef {
	columns := make([]*ColumnDef, 0, len(t.ColumnOrder))
	for _, name := range t.ColumnOrder {
		columns = append(columns, t.Columns[name])
	}
	return columns
}

// HasColumns reports whether every given column exists in the table.
func (t *TableDef) HasColumns(names ...string) bool {
	for _, name := range names {
		if _, ok := t.Columns[name]; !ok {
			return false
		}
	}
	return true
}

type PrimaryKeyDef struct {
	Table  string
	Column string
	// ConstraintName is only known for existing keys.
	ConstraintName string
}

type ForeignKeyDef struct {
	LocalTable     string
	LocalColumn    string
	ForeignTable   string
	ForeignColumn  string
	ConstraintName string
}

func (f ForeignKeyDef) Key() ColumnKey {
	return ColumnKey{Table: f.LocalTable, Column: f.LocalColumn}
}

type UniqueDef struct {
	Name    string
	Table   string
	Columns []string
}

func (u UniqueDef) Key() ColumnsKey {
	return NewColumnsKey(u.Table, u.Columns)
}

type CheckDef struct {
	Name        string
	Table       string
	Column      string
	ValidValues []string
}

func (c CheckDef) Key() CheckKey {
	return NewCheckKey(c.Table, c.Column, c.ValidValues)
}

type IndexDef struct {
	Name     string
	Table    string
	Columns  []string
	IsUnique bool
}

func (i IndexDef) Key() ColumnsKey {
	return NewColumnsKey(i.Table, i.Columns)
}

// Schema is one snapshot: either the model or what exists in the database.
type Schema struct {
	Sequences   map[string]struct{}
	Tables      map[string]*TableDef
	TableOrder  []string
	PrimaryKeys map[string]PrimaryKeyDef
	ForeignKeys map[ColumnKey]ForeignKeyDef
	Uniques     map[ColumnsKey]UniqueDef
	Checks      map[CheckKey]CheckDef
	Indexes     map[ColumnsKey]IndexDef
}

func NewSchema() *Schema {
	return &Schema{
		Sequences:   map[string]struct{}{},
		Tables:      map[string]*TableDef{},
		PrimaryKeys: map[string]PrimaryKeyDef{},
		ForeignKeys: map[ColumnKey]ForeignKeyDef{},
		Uniques:     map[ColumnsKey]UniqueDef{},
		Checks:      map[CheckKey]CheckDef{},
		Indexes:     map[ColumnsKey]IndexDef{},
	}
}

func (s *Schema) AddSequence(name string) {
	s.Sequences[name] = struct{}{}
}

func (s *Schema) HasSequence(name string) bool {
	_, ok := s.Sequences[name]
	return ok
}

// AddTable registers a table. It returns false when the name is already taken.
func (s *Schema) AddTable(table *TableDef) bool {
	if _, ok := s.Tables[table.Name]; ok {
		return false
	}
	s.Tables[table.Name] = table
	s.TableOrder = append(s.TableOrder, table.Name)
	return true
}

func (s *Schema) Table(name string) (*TableDef, bool) {
	table, ok := s.Tables[name]
	return table, ok
}

// OrderedTables returns the tables in TableOrder.
func (s *Schema) OrderedTables() []*TableDef {
	tables := make([]*TableDef, 0, len(s.TableOrder))
	for _, name := range s.TableOrder {
		tables = append(tables, s.Tables[name])
	}
	return tables
}

func (s *Schema) SortedSequences() []string {
	names := make([]string, 0, len(s.Sequences))
	for name := range s.Sequences {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Schema) AddPrimaryKey(pk PrimaryKeyDef) {
	s.PrimaryKeys[pk.Table] = pk
}

func (s *Schema) AddForeignKey(fk ForeignKeyDef) {
	s.ForeignKeys[fk.Key()] = fk
}

func (s *Schema) AddUnique(u UniqueDef) {
	s.Uniques[u.Key()] = u
}

func (s *Schema) AddCheck(c CheckDef) {
	s.Checks[c.Key()] = c
}

func (s *Schema) AddIndex(i IndexDef) {
	s.Indexes[i.Key()] = i
}

// DiffContext holds the two snapshots compared by the reconciliation engine.
type DiffContext struct {
	Model    *Schema
	Existing *Schema
}
