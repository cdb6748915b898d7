package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chrissnell/swrdecode/internal/app"
	"github.com/chrissnell/swrdecode/internal/constants"
	"github.com/chrissnell/swrdecode/internal/log"
	"github.com/chrissnell/swrdecode/internal/session"
	"github.com/chrissnell/swrdecode/internal/store"
	"github.com/chrissnell/swrdecode/pkg/config"
	"github.com/chrissnell/swrdecode/pkg/responseformat"
)

func main() {
	cfgFile := flag.String("config", "", "Path to configuration source:\n\t\t\t  YAML: analysis.yaml\n\t\t\t  SQLite: analysis.db\n\t\t\t  Defaults are used when empty. Use 'config-convert' to store YAML in SQLite")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	cfgName := flag.String("config-name", config.DefaultConfigName, "Parameter set to read from a SQLite configuration")
	sessionFile := flag.String("session", "", "Path to the session file (required)")
	outFile := flag.String("out", "", "Write results here instead of stdout")
	format := flag.String("format", responseformat.FormatJSON, "Output format: 'json' or 'msgpack'")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("swrdecode %s\n", constants.Version)
		os.Exit(0)
	}

	if *sessionFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -session <session.msgpack> [-config analysis.yaml]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*cfgFile, *cfgBackend, *cfgName, *sessionFile, *outFile, *format); err != nil {
		log.Errorf("Analysis failed: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfgFile, cfgBackend, cfgName, sessionFile, outFile, format string) error {
	formatter, err := responseformat.NewFormatter(format)
	if err != nil {
		return err
	}

	cfgData, err := loadConfig(cfgFile, cfgBackend, cfgName)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sess, err := session.Load(sessionFile)
	if err != nil {
		return err
	}

	var opts []app.Option
	if cfgData.Storage.Backend != "none" {
		artifacts, err := store.Open(cfgData.Storage.Backend, cfgData.Storage.DSN)
		if err != nil {
			return fmt.Errorf("failed to open artifact store: %w", err)
		}
		defer artifacts.Close()
		opts = append(opts, app.WithStore(artifacts))
		log.Infof("Caching artifacts in %s store", cfgData.Storage.Backend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := app.New(cfgData, log.Named("app"), opts...).Run(ctx, sess)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := formatter.Write(w, result.Report()); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

func loadConfig(cfgFile, cfgBackend, cfgName string) (*config.ConfigData, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		sqliteProvider, err := config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
		provider = sqliteProvider.WithName(cfgName)
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
