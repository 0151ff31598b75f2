// Package database is the database layer: it loads existing schemas from catalogs and applies
// DDLs in a transaction. It never constructs DDL.
package database

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/sqldef/entitysync/schema"
	"gopkg.in/yaml.v2"
)

type Config struct {
	DbName   string
	User     string
	Password string
	Host     string
	Port     int
	Socket   string

	SslMode string

	// Only PostgreSQL
	// Driver selects the PostgreSQL driver: "postgres" (lib/pq, default) or "pgx".
	Driver string

	// Only MySQL
	MySQLEnableCleartextPlugin bool
	// SslCa is the CA certificate used when SslMode is "custom".
	SslCa string

	// TargetSchema is the namespace whose objects are loaded. Empty means the default schema.
	TargetSchema string
	// DumpConcurrency limits concurrent catalog queries: 0 is sequential, negative is unlimited.
	DumpConcurrency int
}

type GeneratorConfig struct {
	DropUnusedSequences bool
	DropUnusedTables    bool
	DropUnusedColumns   bool
	TargetSchema        string
	DumpConcurrency     int
}

func (c GeneratorConfig) Policy() schema.Policy {
	return schema.Policy{
		DropUnusedSequences: c.DropUnusedSequences,
		DropUnusedTables:    c.DropUnusedTables,
		DropUnusedColumns:   c.DropUnusedColumns,
	}
}

// Database is the abstraction layer for multiple kinds of databases.
type Database interface {
	// LoadSchema returns the existing schema. It is read-only.
	LoadSchema() (*schema.Schema, error)
	DB() *sql.DB
	Close() error
	GetDefaultSchema() string
}

// RunDDLs applies ddls in a single transaction. Nothing is committed unless every statement
// succeeds, and the first failure is returned as reported by the driver.
func RunDDLs(d Database, ddls []string, beforeApply string, logger Logger) error {
	transaction, err := d.DB().Begin()
	if err != nil {
		return err
	}
	if _, ok := d.(*DryRunDatabase); ok {
		logger.Println("-- dry run --")
	} else {
		logger.Println("-- Apply --")
	}
	if len(beforeApply) > 0 {
		logger.Println(beforeApply)
		if _, err := transaction.Exec(beforeApply); err != nil {
			_ = transaction.Rollback()
			return err
		}
	}
	for _, ddl := range ddls {
		logger.Printf("%s;\n", ddl)
		if _, err := transaction.Exec(ddl); err != nil {
			_ = transaction.Rollback()
			return err
		}
	}
	return transaction.Commit()
}

// ParseGeneratorConfig reads the YAML generator config. drop_unused enables every removal;
// the individual drop_unused_* keys take precedence over it.
func ParseGeneratorConfig(configFile string) (GeneratorConfig, error) {
	if configFile == "" {
		return GeneratorConfig{}, nil
	}

	buf, err := os.ReadFile(configFile)
	if err != nil {
		return GeneratorConfig{}, err
	}

	var config struct {
		DropUnused          bool   `yaml:"drop_unused"`
		DropUnusedSequences *bool  `yaml:"drop_unused_sequences"`
		DropUnusedTables    *bool  `yaml:"drop_unused_tables"`
		DropUnusedColumns   *bool  `yaml:"drop_unused_columns"`
		TargetSchema        string `yaml:"target_schema"`
		DumpConcurrency     int    `yaml:"dump_concurrency"`
	}
	if err := yaml.UnmarshalStrict(buf, &config); err != nil {
		return GeneratorConfig{}, fmt.Errorf("failed to parse config %s: %w", configFile, err)
	}

	orDefault := func(v *bool) bool {
		if v != nil {
			return *v
		}
		return config.DropUnused
	}
	return GeneratorConfig{
		DropUnusedSequences: orDefault(config.DropUnusedSequences),
		DropUnusedTables:    orDefault(config.DropUnusedTables),
		DropUnusedColumns:   orDefault(config.DropUnusedColumns),
		TargetSchema:        config.TargetSchema,
		DumpConcurrency:     config.DumpConcurrency,
	}, nil
}
