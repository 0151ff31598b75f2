// Package entitysync reconciles entity descriptors with the schema of a live database.
package entitysync

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/k0kubun/pp/v3"
	"github.com/sqldef/entitysync/database"
	"github.com/sqldef/entitysync/schema"
)

type Options struct {
	EntitiesFile string
	CurrentFile  string
	DryRun       bool
	Export       bool
	Debug        bool
	BeforeApply  string
	Config       database.GeneratorConfig

	// Logger receives the statements. It defaults to stdout.
	Logger database.Logger
	// ChangeLog receives one grouped summary per detected change kind, e.g.
	// "Added sequences s1, s2". It defaults to slog.Info.
	ChangeLog func(string)
}

func (o *Options) logger() database.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return database.StdoutLogger()
}

func (o *Options) changeLog(summary string) {
	if o.ChangeLog != nil {
		o.ChangeLog(summary)
		return
	}
	slog.Info(summary)
}

// Run is the main function shared by all commands.
func Run(generatorMode schema.GeneratorMode, db database.Database, options *Options) error {
	if options.Export {
		return export(db, options.logger())
	}

	buf, err := ReadFile(options.EntitiesFile)
	if err != nil {
		return fmt.Errorf("failed to read '%s': %w", options.EntitiesFile, err)
	}
	entities, err := schema.ParseEntities(buf)
	if err != nil {
		return err
	}

	_, err = Sync(generatorMode, db, schema.Descriptors(entities), options)
	return err
}

// Sync builds the model from descriptors, diffs it against the schema loaded from db and
// applies the difference in one transaction. Dry runs and file targets execute it against
// a database that discards every statement. Configuration errors are returned before db
// is queried. Failures while applying are returned as reported by the driver.
func Sync(generatorMode schema.GeneratorMode, db database.Database, descriptors []schema.Descriptor, options *Options) (schema.Plan, error) {
	dialect := schema.NewDialect(generatorMode)
	model, err := schema.BuildModel(dialect, descriptors...)
	if err != nil {
		return schema.Plan{}, err
	}

	existing, err := db.LoadSchema()
	if err != nil {
		return schema.Plan{}, fmt.Errorf("failed to load existing schema: %w", err)
	}

	if options.Debug {
		pp.Fprintln(os.Stderr, "model:", model)
		pp.Fprintln(os.Stderr, "existing:", existing)
	}

	plan := schema.GenerateIdempotentDDLs(dialect, model, existing, options.Config.Policy())
	logger := options.logger()
	if plan.Empty() {
		logger.Println("-- Nothing is modified --")
		return plan, nil
	}
	for _, summary := range plan.Summaries {
		options.changeLog(summary.String())
	}

	if options.DryRun || len(options.CurrentFile) > 0 {
		dryRun, err := database.NewDryRunDatabase(db)
		if err != nil {
			return plan, err
		}
		defer dryRun.Close()
		db = dryRun
	}
	return plan, database.RunDDLs(db, plan.DDLs, options.BeforeApply, logger)
}

func export(db database.Database, logger database.Logger) error {
	existing, err := db.LoadSchema()
	if err != nil {
		return fmt.Errorf("failed to load existing schema: %w", err)
	}
	if len(existing.Tables) == 0 && len(existing.Sequences) == 0 {
		logger.Println("# No table exists")
		return nil
	}
	buf, err := schema.NewSnapshot(existing).Marshal()
	if err != nil {
		return err
	}
	logger.Print(string(buf))
	return nil
}

// ReadFile reads path, or stdin when path is "-".
func ReadFile(path string) ([]byte, error) {
	if path == "-" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return nil, fmt.Errorf("stdin is not piped")
		}
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
