package schema

import (
	"fmt"
	"strings"
)

type builtEntity struct {
	entity     Entity
	table      *TableDef
	primaryKey string
}

type modelBuilder struct {
	dialect  Dialect
	model    *Schema
	entities map[string]*builtEntity
}

// BuildModel derives the model schema from entity descriptors. Columns are built for every
// entity first; reference columns are resolved afterwards because they take the type of the
// target's primary key.
func BuildModel(dialect Dialect, descriptors ...Descriptor) (*Schema, error) {
	b := &modelBuilder{
		dialect:  dialect,
		model:    NewSchema(),
		entities: map[string]*builtEntity{},
	}

	entities := make([]Entity, 0, len(descriptors))
	for _, descriptor := range descriptors {
		entities = append(entities, descriptor.Describe())
	}

	for _, entity := range entities {
		if err := b.addEntity(entity); err != nil {
			return nil, err
		}
	}
	for _, entity := range entities {
		if err := b.resolveReferences(entity); err != nil {
			return nil, err
		}
	}
	return b.model, nil
}

func (b *modelBuilder) addEntity(entity Entity) error {
	// References resolve by entity name.
	if entity.Name == "" {
		return &ConfigurationError{Entity: entity.label(), Err: ErrMissingEntityName}
	}
	if _, ok := b.entities[entity.Name]; ok {
		return &ConfigurationError{Entity: entity.label(), Err: ErrDuplicateEntity, Detail: entity.Name}
	}

	table := NewTableDef(entity.TableName())
	if !b.model.AddTable(table) {
		return &ConfigurationError{Entity: entity.label(), Err: ErrDuplicateTable, Detail: table.Name}
	}

	built := &builtEntity{entity: entity, table: table}
	idField := primaryKeyField(entity)
	for i, field := range entity.Fields {
		column, err := b.buildColumn(entity, table.Name, field, i == idField)
		if err != nil {
			return err
		}
		if !table.AddColumn(column) {
			return &ConfigurationError{Entity: entity.label(), Field: field.Name, Err: ErrDuplicateColumn, Detail: column.Name}
		}

		if column.SourceSequence != "" {
			b.model.AddSequence(column.SourceSequence)
		}
		if column.Model.PrimaryKey {
			built.primaryKey = column.Name
			b.model.AddPrimaryKey(PrimaryKeyDef{Table: table.Name, Column: column.Name})
		}
		if column.Model.Unique {
			b.model.AddUnique(UniqueDef{Table: table.Name, Columns: []string{column.Name}})
		}
		if len(field.Enum) > 0 {
			b.model.AddCheck(CheckDef{Table: table.Name, Column: column.Name, ValidValues: field.Enum})
		}
	}

	for _, columns := range entity.UniqueConstraints {
		if len(columns) == 0 {
			continue
		}
		if !table.HasColumns(columns...) {
			return &ConfigurationError{Entity: entity.label(), Err: ErrUnknownColumn, Detail: "unique constraint on " + strings.Join(columns, ", ")}
		}
		b.model.AddUnique(UniqueDef{Table: table.Name, Columns: columns})
	}
	for _, columns := range entity.Indexes {
		if len(columns) == 0 {
			continue
		}
		if !table.HasColumns(columns...) {
			return &ConfigurationError{Entity: entity.label(), Err: ErrUnknownColumn, Detail: "index on " + strings.Join(columns, ", ")}
		}
		b.model.AddIndex(IndexDef{Table: table.Name, Columns: columns})
	}

	b.entities[entity.Name] = built
	return nil
}

func (b *modelBuilder) buildColumn(entity Entity, table string, field Field, isPrimaryKey bool) (*ColumnDef, error) {
	fail := func(err error, detail string) error {
		return &ConfigurationError{Entity: entity.label(), Field: field.Name, Err: err, Detail: detail}
	}

	column := &ColumnDef{
		Name:               field.ColumnName(),
		IsJSON:             field.JSON,
		DefinitionOverride: strings.TrimSpace(field.ColumnDefinition),
		Model: &ModelAttributes{
			PrimaryKey: isPrimaryKey,
			Unique:     field.Unique,
			ForeignKey: field.IsReference(),
		},
	}

	switch field.Generated {
	case GenerationNone, GenerationAuto, GenerationSequence:
	case GenerationIdentity:
		if !b.dialect.SupportsIdentity() {
			return nil, fail(ErrIdentityUnsupported, "")
		}
		column.Model.Identity = true
	case GenerationTable:
		return nil, fail(ErrTableStrategyUnsupported, "")
	default:
		return nil, fail(ErrUnknownStrategy, string(field.Generated))
	}

	if err := b.assignGenerator(column, table, field); err != nil {
		return nil, fail(err, "")
	}
	if column.Model.Identity && column.Model.ForeignKey {
		return nil, fail(ErrIdentityReference, "")
	}

	switch {
	case isPrimaryKey:
		column.IsNullable = false
	case field.Nullable != nil:
		column.IsNullable = *field.Nullable
	default:
		column.IsNullable = field.defaultNullable()
	}

	// Reference columns get their type once every table is known.
	if field.IsReference() {
		return column, nil
	}
	if field.JSON {
		column.Type = b.dialect.JSONType()
		return column, nil
	}
	sqlType, err := b.dialect.SQLType(field.baseType())
	if err != nil {
		return nil, &ConfigurationError{Entity: entity.label(), Field: field.Name, Err: err}
	}
	column.Type = sqlType
	return column, nil
}

// assignGenerator sets the source sequence of generated columns. An id column that is
// neither marked nor generated explicitly is generated implicitly. Dialects without
// sequences generate such columns as identity columns.
func (b *modelBuilder) assignGenerator(column *ColumnDef, table string, field Field) error {
	implicit := column.Model.PrimaryKey && !field.ID && field.Generated == GenerationNone
	if field.Generated != GenerationAuto && field.Generated != GenerationSequence && !implicit {
		return nil
	}

	if !b.dialect.SupportsSequences() {
		if field.Generated == GenerationSequence || !b.dialect.SupportsIdentity() {
			return ErrSequenceUnsupported
		}
		column.Model.Identity = true
		return nil
	}

	name := strings.TrimSpace(field.Generator)
	if name == "" || implicit {
		name = b.dialect.DefaultSequenceName(table, column.Name)
	}
	column.SourceSequence = b.dialect.NormalizeSequenceName(name)
	return nil
}

func (b *modelBuilder) resolveReferences(entity Entity) error {
	built := b.entities[entity.Name]
	for _, field := range entity.Fields {
		if !field.IsReference() {
			continue
		}

		target, ok := b.entities[field.References]
		if !ok {
			return &ConfigurationError{Entity: entity.label(), Field: field.Name, Err: ErrUnknownReference, Detail: field.References}
		}
		if target.primaryKey == "" {
			return &ConfigurationError{Entity: entity.label(), Field: field.Name, Err: ErrReferenceWithoutPrimaryKey, Detail: field.References}
		}

		column := built.table.Columns[field.ColumnName()]
		column.Type = target.table.Columns[target.primaryKey].Type
		b.model.AddForeignKey(ForeignKeyDef{
			LocalTable:    built.table.Name,
			LocalColumn:   column.Name,
			ForeignTable:  target.table.Name,
			ForeignColumn: target.primaryKey,
		})
	}
	return nil
}

// primaryKeyField returns the index of the first field marked as id, or else of a field
// whose column is "id". It returns -1 when the entity has no primary key.
func primaryKeyField(entity Entity) int {
	for i, field := range entity.Fields {
		if field.ID {
			return i
		}
	}
	for i, field := range entity.Fields {
		if field.ColumnName() == "id" {
			return i
		}
	}
	return -1
}

func (e Entity) label() string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("table %s", e.TableName())
}
