package schema

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedType            = errors.New("unsupported type")
	ErrIdentityUnsupported        = errors.New("identity strategy not supported")
	ErrSequenceUnsupported        = errors.New("sequence strategy not supported")
	ErrTableStrategyUnsupported   = errors.New("table strategy not supported")
	ErrUnknownStrategy            = errors.New("unknown generation strategy")
	ErrIdentityReference          = errors.New("identity generation and reference are mutually exclusive")
	ErrUnknownReference           = errors.New("reference target not registered")
	ErrReferenceWithoutPrimaryKey = errors.New("reference target does not declare a primary key")
	ErrUnknownColumn              = errors.New("unknown column")
	ErrDuplicateColumn            = errors.New("duplicate column")
	ErrDuplicateTable             = errors.New("duplicate table")
	ErrMissingEntityName          = errors.New("entity name is required")
	ErrDuplicateEntity            = errors.New("duplicate entity")
)

// ConfigurationError reports an entity descriptor that cannot be turned into a schema.
// It is raised before the database is touched.
type ConfigurationError struct {
	Entity string
	Field  string
	Err    error
	Detail string
}

func (e *ConfigurationError) Error() string {
	ref := e.Entity
	if e.Field != "" {
		ref += "." + e.Field
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", ref, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %s", ref, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
