package schema

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sqldef/entitysync/util"
)

// Policy gates every removal. Additions and alterations are never gated.
type Policy struct {
	DropUnusedSequences bool
	DropUnusedTables    bool
	DropUnusedColumns   bool
}

// AllDrops enables every removal.
func AllDrops() Policy {
	return Policy{DropUnusedSequences: true, DropUnusedTables: true, DropUnusedColumns: true}
}

// Summary is one grouped line of the change log, e.g. "Added sequences s1, s2".
type Summary struct {
	Action  string
	Subject string
	Names   []string
}

func (s Summary) String() string {
	return fmt.Sprintf("%s %s %s", s.Action, s.Subject, strings.Join(s.Names, ", "))
}

// Plan is the ordered result of a reconciliation.
type Plan struct {
	DDLs      []string
	Summaries []Summary
}

func (p Plan) Empty() bool {
	return len(p.DDLs) == 0
}

// String renders the plan as one SQL script.
func (p Plan) String() string {
	var b strings.Builder
	for _, ddl := range p.DDLs {
		b.WriteString(ddl)
		b.WriteString(";\n")
	}
	return b.String()
}

// step is the outcome of one detection pass.
type step struct {
	ddls    []string
	summary Summary
}

func newStep(action, subject string) *step {
	return &step{summary: Summary{Action: action, Subject: subject}}
}

func (s *step) add(ddl, name string) {
	if ddl == "" {
		return
	}
	s.ddls = append(s.ddls, ddl)
	if !slices.Contains(s.summary.Names, name) {
		s.summary.Names = append(s.summary.Names, name)
	}
}

type Generator struct {
	dialect Dialect
	policy  Policy
	ctx     DiffContext
}

func NewGenerator(dialect Dialect, ctx DiffContext, policy Policy) *Generator {
	return &Generator{dialect: dialect, policy: policy, ctx: ctx}
}

// GenerateIdempotentDDLs returns the statements that turn existing into model.
// Reconciling the result again yields an empty plan.
func GenerateIdempotentDDLs(dialect Dialect, model, existing *Schema, policy Policy) Plan {
	return NewGenerator(dialect, DiffContext{Model: model, Existing: existing}, policy).Generate()
}

// Generate runs every detection pass in dependency order. Parents are created first and
// dropped last, so the cascade checks of the constraint passes still see them.
func (g *Generator) Generate() Plan {
	steps := []*step{
		g.newSequences(),
		g.newTables(),
	}

	for _, table := range g.ctx.Model.OrderedTables() {
		existing, ok := g.ctx.Existing.Table(table.Name)
		if !ok {
			continue
		}
		steps = append(steps, g.newColumns(table, existing), g.changedColumns(table, existing))
		if g.policy.DropUnusedColumns {
			steps = append(steps, g.removedColumns(table, existing))
		}
	}

	// A replaced primary key has to be dropped before the new one can be added. Named
	// uniques and indexes are dropped first too, since a generated name may be taken by
	// the object being replaced.
	steps = append(steps,
		g.removedPrimaryKeys(),
		g.newPrimaryKeys(),
		g.newForeignKeys(),
		g.removedForeignKeys(),
		g.removedUniques(),
		g.newUniques(),
		g.newChecks(),
		g.removedChecks(),
		g.removedIndexes(),
		g.newIndexes(),
	)

	if g.policy.DropUnusedTables {
		steps = append(steps, g.removedTables())
	}
	if g.policy.DropUnusedSequences {
		steps = append(steps, g.removedSequences())
	}

	var plan Plan
	for _, s := range steps {
		plan.DDLs = append(plan.DDLs, s.ddls...)
		if len(s.summary.Names) > 0 {
			plan.Summaries = append(plan.Summaries, s.summary)
		}
	}
	slog.Debug("Generated DDLs", "statements", len(plan.DDLs))
	return plan
}

func (g *Generator) newSequences() *step {
	s := newStep("Added", "sequences")
	for _, name := range g.ctx.Model.SortedSequences() {
		if !g.ctx.Existing.HasSequence(name) {
			s.add(g.dialect.CreateSequence(name), name)
		}
	}
	return s
}

func (g *Generator) newTables() *step {
	s := newStep("Added", "tables")
	for _, table := range g.ctx.Model.OrderedTables() {
		if _, ok := g.ctx.Existing.Table(table.Name); ok {
			continue
		}
		s.add(g.dialect.CreateTable(table, g.ctx.Model.PrimaryKeys[table.Name].Column), table.Name)
	}
	return s
}

func (g *Generator) newColumns(table, existing *TableDef) *step {
	s := newStep("Added", table.Name+" columns")
	for _, column := range table.OrderedColumns() {
		if _, ok := existing.Column(column.Name); !ok {
			s.add(g.dialect.AddColumn(table.Name, column), column.Name)
		}
	}
	return s
}

// changedColumns emits one statement per differing attribute. Columns with a definition
// override are skipped since their real attributes are unknown.
func (g *Generator) changedColumns(table, existing *TableDef) *step {
	s := newStep("Changed", table.Name+" columns")
	for _, column := range table.OrderedColumns() {
		current, ok := existing.Column(column.Name)
		if !ok || column.DefinitionOverride != "" {
			continue
		}
		if !strings.EqualFold(column.Type, current.Type) {
			s.add(g.dialect.AlterColumnType(table.Name, column), column.Name)
		}
		if column.IsNullable != current.IsNullable {
			s.add(g.dialect.AlterColumnNullability(table.Name, column), column.Name)
		}
		if column.SourceSequence != current.SourceSequence {
			s.add(g.dialect.AlterColumnDefault(table.Name, column), column.Name)
		}
	}
	return s
}

func (g *Generator) removedColumns(table, existing *TableDef) *step {
	s := newStep("Removed", table.Name+" columns")
	for _, column := range existing.OrderedColumns() {
		if _, ok := table.Column(column.Name); !ok {
			s.add(g.dialect.DropColumn(table.Name, column.Name), column.Name)
		}
	}
	return s
}

func (g *Generator) newPrimaryKeys() *step {
	s := newStep("Added", "primary keys")
	for _, table := range g.ctx.Model.OrderedTables() {
		pk, ok := g.ctx.Model.PrimaryKeys[table.Name]
		if !ok {
			continue
		}
		// New tables carry their primary key in CREATE TABLE.
		if _, ok := g.ctx.Existing.Table(table.Name); !ok {
			continue
		}
		if current, ok := g.ctx.Existing.PrimaryKeys[table.Name]; !ok || current.Column != pk.Column {
			s.add(g.dialect.AddPrimaryKey(table.Name, pk.Column), table.Name)
		}
	}
	return s
}

func (g *Generator) removedPrimaryKeys() *step {
	s := newStep("Removed", "primary keys")
	for _, pk := range util.CanonicalMapIter(g.ctx.Existing.PrimaryKeys) {
		table, ok := g.ctx.Model.Table(pk.Table)
		if !ok {
			continue // dropped along with the table
		}
		column, ok := table.Column(pk.Column)
		if !ok && g.policy.DropUnusedColumns {
			continue // dropped along with the column
		}
		// A retained column keeps its key, which would block a new one.
		if ok && column.IsPrimaryKey() {
			continue
		}
		s.add(g.dialect.DropPrimaryKey(pk), pk.Table)
	}
	return s
}

func (g *Generator) newForeignKeys() *step {
	s := newStep("Added", "foreign keys")
	for key, fk := range util.SortedMapIter(g.ctx.Model.ForeignKeys, ColumnKey.Compare) {
		if _, ok := g.ctx.Existing.ForeignKeys[key]; !ok {
			s.add(g.dialect.CreateForeignKey(fk), fk.LocalTable+"."+fk.LocalColumn)
		}
	}
	return s
}

func (g *Generator) removedForeignKeys() *step {
	s := newStep("Removed", "foreign keys")
	for key, fk := range util.SortedMapIter(g.ctx.Existing.ForeignKeys, ColumnKey.Compare) {
		if _, ok := g.ctx.Model.ForeignKeys[key]; ok || g.cascaded(fk.LocalTable, fk.LocalColumn) {
			continue
		}
		s.add(g.dialect.DropForeignKey(fk), fk.ConstraintName)
	}
	return s
}

func (g *Generator) newUniques() *step {
	s := newStep("Added", "unique constraints")
	for key, u := range util.SortedMapIter(g.ctx.Model.Uniques, ColumnsKey.Compare) {
		if _, ok := g.ctx.Existing.Uniques[key]; !ok {
			s.add(g.dialect.CreateUnique(u), columnListName(u.Table, u.Columns))
		}
	}
	return s
}

func (g *Generator) removedUniques() *step {
	s := newStep("Removed", "unique constraints")
	for key, u := range util.SortedMapIter(g.ctx.Existing.Uniques, ColumnsKey.Compare) {
		if _, ok := g.ctx.Model.Uniques[key]; ok || g.cascaded(u.Table, u.Columns...) {
			continue
		}
		s.add(g.dialect.DropUnique(u), u.Name)
	}
	return s
}

func (g *Generator) newChecks() *step {
	s := newStep("Added", "check constraints")
	for key, c := range util.SortedMapIter(g.ctx.Model.Checks, CheckKey.Compare) {
		if _, ok := g.ctx.Existing.Checks[key]; !ok {
			s.add(g.dialect.CreateCheck(c), c.Table+"."+c.Column)
		}
	}
	return s
}

func (g *Generator) removedChecks() *step {
	s := newStep("Removed", "check constraints")
	for key, c := range util.SortedMapIter(g.ctx.Existing.Checks, CheckKey.Compare) {
		if _, ok := g.ctx.Model.Checks[key]; ok || g.cascaded(c.Table, c.Column) {
			continue
		}
		s.add(g.dialect.DropCheck(c), c.Name)
	}
	return s
}

func (g *Generator) newIndexes() *step {
	s := newStep("Added", "indexes")
	for key, i := range util.SortedMapIter(g.ctx.Model.Indexes, ColumnsKey.Compare) {
		if _, ok := g.ctx.Existing.Indexes[key]; !ok {
			s.add(g.dialect.CreateIndex(i), columnListName(i.Table, i.Columns))
		}
	}
	return s
}

func (g *Generator) removedIndexes() *step {
	s := newStep("Removed", "indexes")
	for key, i := range util.SortedMapIter(g.ctx.Existing.Indexes, ColumnsKey.Compare) {
		if _, ok := g.ctx.Model.Indexes[key]; ok || g.cascaded(i.Table, i.Columns...) {
			continue
		}
		s.add(g.dialect.DropIndex(i), i.Name)
	}
	return s
}

// removedTables drops referencing tables before the tables they reference, so the batch is
// also valid for dialects that ignore CASCADE.
func (g *Generator) removedTables() *step {
	s := newStep("Removed", "tables")

	var names []string
	for name := range g.ctx.Existing.Tables {
		if _, ok := g.ctx.Model.Table(name); !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	dependents := map[string][]string{}
	for _, fk := range util.SortedMapIter(g.ctx.Existing.ForeignKeys, ColumnKey.Compare) {
		if fk.LocalTable != fk.ForeignTable {
			dependents[fk.ForeignTable] = append(dependents[fk.ForeignTable], fk.LocalTable)
		}
	}
	if sorted, ok := topologicalSort(names, dependents, func(name string) string { return name }); ok {
		names = sorted
	}

	for _, name := range names {
		s.add(g.dialect.DropTable(name), name)
	}
	return s
}

func (g *Generator) removedSequences() *step {
	s := newStep("Removed", "sequences")
	for _, name := range g.ctx.Existing.SortedSequences() {
		if !g.ctx.Model.HasSequence(name) {
			s.add(g.dialect.DropSequence(name), name)
		}
	}
	return s
}

// cascaded reports whether an existing constraint goes away implicitly, because its table
// or one of its columns is no longer part of the model.
func (g *Generator) cascaded(table string, columns ...string) bool {
	modelTable, ok := g.ctx.Model.Table(table)
	if !ok {
		return true
	}
	return !modelTable.HasColumns(columns...)
}

func columnListName(table string, columns []string) string {
	return fmt.Sprintf("%s(%s)", table, strings.Join(columns, ", "))
}
