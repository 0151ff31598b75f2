package schema

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/sqldef/entitysync/util"
)

type GenerationStrategy string

const (
	GenerationNone     GenerationStrategy = ""
	GenerationAuto     GenerationStrategy = "auto"
	GenerationSequence GenerationStrategy = "sequence"
	GenerationIdentity GenerationStrategy = "identity"
	GenerationTable    GenerationStrategy = "table"
)

// Descriptor is implemented by anything that can describe one entity: generated code,
// a builder API, or the YAML entity file.
type Descriptor interface {
	Describe() Entity
}

// Entity describes one table of the model.
type Entity struct {
	Name   string  `yaml:"name"`
	Table  string  `yaml:"table,omitempty"`
	Fields []Field `yaml:"fields"`

	// UniqueConstraints and Indexes list table-level column lists.
	UniqueConstraints [][]string `yaml:"unique_constraints,omitempty"`
	Indexes           [][]string `yaml:"indexes,omitempty"`
}

func (e Entity) Describe() Entity {
	return e
}

// TableName returns the configured table name or the snake_case entity name.
func (e Entity) TableName() string {
	if e.Table != "" {
		return e.Table
	}
	return util.SnakeCase(e.Name)
}

// Field describes one column of an entity.
type Field struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column,omitempty"`

	// Type is a field type such as "int64", "*int64", "string" or "zoned_time".
	// Reference fields take the type of the target's primary key and leave it empty.
	Type string `yaml:"type,omitempty"`

	ID        bool               `yaml:"id,omitempty"`
	Nullable  *bool              `yaml:"nullable,omitempty"`
	JSON      bool               `yaml:"json,omitempty"`
	Generated GenerationStrategy `yaml:"generated,omitempty"`
	Generator string             `yaml:"generator,omitempty"`
	Unique    bool               `yaml:"unique,omitempty"`

	ColumnDefinition string `yaml:"column_definition,omitempty"`

	// References names the target entity of a many-to-one reference.
	References string `yaml:"references,omitempty"`
	Optional   *bool  `yaml:"optional,omitempty"`

	// Enum lists the valid values of an enumeration field.
	Enum []string `yaml:"enum,omitempty"`
}

// ColumnName returns the configured column name or the snake_case field name,
// suffixed with "_id" for references.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	name := util.SnakeCase(f.Name)
	if f.References != "" {
		name += "_id"
	}
	return name
}

func (f Field) IsReference() bool {
	return f.References != ""
}

func (f Field) IsEnum() bool {
	return len(f.Enum) > 0 || f.Type == "enum"
}

// baseType strips the pointer marker from the field type.
func (f Field) baseType() string {
	if f.IsEnum() {
		return "enum"
	}
	return strings.TrimPrefix(f.Type, "*")
}

var valueTypes = map[string]bool{
	"bool":    true,
	"int":     true,
	"int8":    true,
	"int16":   true,
	"int32":   true,
	"int64":   true,
	"byte":    true,
	"float32": true,
	"float64": true,
}

func (f Field) defaultNullable() bool {
	if f.IsReference() {
		if f.Optional != nil {
			return *f.Optional
		}
		return true
	}
	if strings.HasPrefix(f.Type, "*") {
		return true
	}
	return !valueTypes[f.Type]
}

// ParseEntities decodes a YAML list of entities. Unknown fields are rejected.
func ParseEntities(buf []byte) ([]Entity, error) {
	var entities []Entity
	dec := yaml.NewDecoder(bytes.NewReader(buf), yaml.DisallowUnknownField())
	if err := dec.Decode(&entities); err != nil {
		return nil, fmt.Errorf("failed to parse entities: %w", err)
	}
	return entities, nil
}

// Descriptors adapts entities to the Descriptor interface.
func Descriptors(entities []Entity) []Descriptor {
	return util.TransformSlice(entities, func(e Entity) Descriptor { return e })
}
