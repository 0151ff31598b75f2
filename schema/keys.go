package schema

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/sqldef/entitysync/util"
)

// ColumnKey correlates objects bound to a single column, such as foreign keys.
type ColumnKey struct {
	Table  string
	Column string
}

func (k ColumnKey) Compare(o ColumnKey) int {
	return cmp.Or(cmp.Compare(k.Table, o.Table), cmp.Compare(k.Column, o.Column))
}

// ColumnsKey correlates objects bound to an ordered column list, such as unique constraints
// and indexes. Columns holds every name quoted, so separators inside names cannot collide.
type ColumnsKey struct {
	Table   string
	Columns string
}

func NewColumnsKey(table string, columns []string) ColumnsKey {
	return ColumnsKey{Table: table, Columns: encodeList(columns)}
}

func (k ColumnsKey) Compare(o ColumnsKey) int {
	return cmp.Or(cmp.Compare(k.Table, o.Table), cmp.Compare(k.Columns, o.Columns))
}

// CheckKey correlates check constraints by column and their set of valid values.
type CheckKey struct {
	Table  string
	Column string
	Values string
}

func NewCheckKey(table, column string, values []string) CheckKey {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return CheckKey{Table: table, Column: column, Values: encodeList(sorted)}
}

func (k CheckKey) Compare(o CheckKey) int {
	return cmp.Or(
		cmp.Compare(k.Table, o.Table),
		cmp.Compare(k.Column, o.Column),
		cmp.Compare(k.Values, o.Values),
	)
}

func encodeList(items []string) string {
	return strings.Join(util.TransformSlice(items, strconv.Quote), ",")
}
