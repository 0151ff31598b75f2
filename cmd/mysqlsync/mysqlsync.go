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
	"github.com/sqldef/entitysync/database/mysql"
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
		User                  string `short:"u" long:"user" description:"MySQL user name" value-name:"user_name" default:"root"`
		Password              string `short:"p" long:"password" description:"MySQL user password, overridden by $MYSQL_PWD" value-name:"password"`
		Host                  string `short:"h" long:"host" description:"Host to connect to the MySQL server" value-name:"host_name" default:"127.0.0.1"`
		Port                  uint   `short:"P" long:"port" description:"Port used for the connection" value-name:"port_num" default:"3306"`
		Socket                string `short:"S" long:"socket" description:"The socket file to use for connection" value-name:"socket"`
		SslMode               string `long:"ssl-mode" description:"SSL connection mode(PREFERRED,REQUIRED,DISABLED,CUSTOM)." value-name:"ssl_mode" default:"PREFERRED"`
		SslCa                 string `long:"ssl-ca" description:"File that contains list of trusted SSL Certificate Authorities" value-name:"ssl_ca"`
		Prompt                bool   `long:"password-prompt" description:"Force MySQL user password prompt"`
		EnableCleartextPlugin bool   `long:"enable-cleartext-plugin" description:"Enable/disable the clear text authentication plugin"`
		File                  string `long:"file" description:"Read entities from the file, rather than stdin" value-name:"entities_file" default:"-"`
		DryRun                bool   `long:"dry-run" description:"Don't run DDLs but just show them"`
		Export                bool   `long:"export" description:"Just dump the current schema to stdout as YAML"`
		Debug                 bool   `long:"debug" description:"Dump the model and existing schemas to stderr"`
		BeforeApply           string `long:"before-apply" description:"Execute the given string before applying the regular DDLs"`
		Config                string `long:"config" description:"YAML file to specify: drop_unused, drop_unused_sequences, drop_unused_tables, drop_unused_columns, dump_concurrency" value-name:"config_file"`
		Help                  bool   `long:"help" description:"Show this help"`
		Version               bool   `long:"version" description:"Show this version"`
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
	if strings.HasSuffix(args[0], ".yml") || strings.HasSuffix(args[0], ".yaml") {
		options.CurrentFile = args[0]
	} else {
		databaseName = args[0]
	}

	switch strings.ToLower(opts.SslMode) {
	case "disabled":
		opts.SslMode = "false"
	case "preferred":
		opts.SslMode = "preferred"
	case "required":
		opts.SslMode = "true"
	case "custom":
		opts.SslMode = "custom"
	default:
		fmt.Printf("Wrong value for ssl-mode is given: %v\n\n", opts.SslMode)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	password, ok := os.LookupEnv("MYSQL_PWD")
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

	dbConfig := database.Config{
		DbName:                     databaseName,
		User:                       opts.User,
		Password:                   password,
		Host:                       opts.Host,
		Port:                       int(opts.Port),
		Socket:                     opts.Socket,
		MySQLEnableCleartextPlugin: opts.EnableCleartextPlugin,
		SslMode:                    opts.SslMode,
		SslCa:                      opts.SslCa,
		DumpConcurrency:            config.DumpConcurrency,
	}
	return dbConfig, &options
}

func main() {
	_ = godotenv.Load()
	util.InitSlog()

	config, options := parseOptions(os.Args[1:])

	var db database.Database
	if len(options.CurrentFile) > 0 {
		db = file.NewDatabase(options.CurrentFile)
	} else {
		var err error
		db, err = mysql.NewDatabase(config)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
	}

	if err := entitysync.Run(schema.GeneratorModeMysql, db, options); err != nil {
		log.Fatal(err)
	}
}
