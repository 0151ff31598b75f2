package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/sqldef/entitysync"
	"github.com/sqldef/entitysync/database"
	"github.com/sqldef/entitysync/database/file"
	"github.com/sqldef/entitysync/database/postgres"
	"github.com/sqldef/entitysync/schema"
	"github.com/sqldef/entitysync/util"
	"golang.org/x/term"
)

// version and revision are set via -ldflags
var version = "dev"
var revision = "HEAD"

// Return parsed options and entities filename
func parseOptions(args []string) (database.Config, *entitysync.Options) {
	var opts struct {
		User         string `short:"U" long:"user" description:"PostgreSQL user name" value-name:"username" default:"postgres"`
		Password     string `short:"W" long:"password" description:"PostgreSQL user password, overridden by $PGPASSWORD" value-name:"password"`
		Host         string `short:"h" long:"host" description:"Host or socket directory to connect to the PostgreSQL server" value-name:"hostname" default:"127.0.0.1"`
		Port         uint   `short:"p" long:"port" description:"Port used for the connection" value-name:"port" default:"5432"`
		Prompt       bool   `long:"password-prompt" description:"Force PostgreSQL user password prompt"`
		Driver       string `long:"driver" description:"PostgreSQL driver (postgres, pgx)" value-name:"driver" default:"postgres"`
		TargetSchema string `long:"target-schema" description:"Schema whose objects are managed, defaults to the search_path head" value-name:"schema"`
		File         string `short:"f" long:"file" description:"Read entities from the file, rather than stdin" value-name:"entities_file" default:"-"`
		DryRun       bool   `long:"dry-run" description:"Don't run DDLs but just show them"`
		Export       bool   `long:"export" description:"Just dump the current schema to stdout as YAML"`
		Debug        bool   `long:"debug" description:"Dump the model and existing schemas to stderr"`
		BeforeApply  string `long:"before-apply" description:"Execute the given string before applying the regular DDLs"`
		Config       string `long:"config" description:"YAML file to specify: drop_unused, drop_unused_sequences, drop_unused_tables, drop_unused_columns, target_schema, dump_concurrency" value-name:"config_file"`
		Help         bool   `long:"help" description:"Show this help"`
		Version      bool   `long:"version" description:"Show this version"`
	}

	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[OPTIONS] [database|current.yml] < entities.yml"
	args, err := parser.ParseArgs(args)
	if err != nil {
		log.Fatal(err)
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if opts.Version {
		fmt.Printf("%s (%s)\n", version, revision)
		os.Exit(0)
	}

	var config database.GeneratorConfig
	if len(opts.Config) > 0 {
		config, err = database.ParseGeneratorConfig(opts.Config)
		if err != nil {
			log.Fatal(err)
		}
	}
	if len(opts.TargetSchema) > 0 {
		config.TargetSchema = opts.TargetSchema
	}

	options := entitysync.Options{
		EntitiesFile: opts.File,
		DryRun:       opts.DryRun,
		Export:       opts.Export,
		Debug:        opts.Debug,
		BeforeApply:  opts.BeforeApply,
		Config:       config,
	}

	if len(args) == 0 {
		fmt.Print("No database is specified!\n\n")
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	} else if len(args) > 1 {
		fmt.Printf("Multiple databases are given: %v\n\n", args)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}
	var databaseName string
	if isSnapshotFile(args[0]) {
		options.CurrentFile = args[0]
	} else {
		databaseName = args[0]
	}

	password, ok := os.LookupEnv("PGPASSWORD")
	if !ok {
		password = opts.Password
	}

	if opts.Prompt {
		fmt.Printf("Enter Password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			log.Fatal(err)
		}
		password = string(pass)
	}

	switch opts.Driver {
	case "postgres", "pgx":
	default:
		fmt.Printf("Wrong value for driver is given: %v\n\n", opts.Driver)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	dbConfig := database.Config{
		DbName:          databaseName,
		User:            opts.User,
		Password:        password,
		Host:            opts.Host,
		Port:            int(opts.Port),
		Driver:          opts.Driver,
		TargetSchema:    config.TargetSchema,
		DumpConcurrency: config.DumpConcurrency,
	}
	if strings.HasPrefix(opts.Host, "/") {
		dbConfig.Socket = opts.Host
	}
	return dbConfig, &options
}

func isSnapshotFile(arg string) bool {
	return strings.HasSuffix(arg, ".yml") || strings.HasSuffix(arg, ".yaml")
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	util.InitSlog()

	config, options := parseOptions(os.Args[1:])

	var db database.Database
	if len(options.CurrentFile) > 0 {
		db = file.NewDatabase(options.CurrentFile)
	} else {
		var err error
		db, err = postgres.NewDatabase(config)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
	}

	if err := entitysync.Run(schema.GeneratorModePostgres, db, options); err != nil {
		log.Fatal(err)
	}
}
