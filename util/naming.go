package util

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxIdentifierLength is PostgreSQL's NAMEDATALEN - 1.
const MaxIdentifierLength = 63

// BuildConstraintName generates a constraint name following PostgreSQL's naming convention,
// e.g. "users_name_email_key". Names longer than 63 bytes are truncated the way PostgreSQL does:
// when the column part is longer than 28 bytes it is cut to 28 first, and the remaining
// overflow is taken from the table part.
func BuildConstraintName(tableName string, columnNames []string, suffix string) string {
	columnName := strings.Join(columnNames, "_")
	fullName := fmt.Sprintf("%s_%s_%s", tableName, columnName, suffix)
	if len(fullName) <= MaxIdentifierLength {
		return fullName
	}

	overflow := len(fullName) - MaxIdentifierLength
	tableRemove := overflow
	columnRemove := 0
	if len(columnName) > 28 {
		columnRemove = min(overflow, len(columnName)-28)
		tableRemove = overflow - columnRemove
	}
	tableRemove = min(tableRemove, len(tableName))

	return fmt.Sprintf("%s_%s_%s",
		tableName[:len(tableName)-tableRemove],
		columnName[:len(columnName)-columnRemove],
		suffix)
}

// SnakeCase converts a CamelCase identifier into snake_case. An underscore is inserted only
// before an upper-case letter that follows a lower-case letter or a digit, so "EntityFKey"
// becomes "entity_fkey" and "complexName" becomes "complex_name".
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
