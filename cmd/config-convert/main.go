package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/swrdecode/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		name       = flag.String("name", config.DefaultConfigName, "Name of the parameter set to store")
		list       = flag.Bool("list", false, "List the parameter sets stored in the database and exit")
		dryRun     = flag.Bool("dry-run", false, "Validate and print the configuration without storing it")
	)
	flag.Parse()

	if *sqliteFile == "" || (*yamlFile == "" && !*list) {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <analysis.yaml> -sqlite <analysis.db> [-name default]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *list {
		if err := listConfigs(*sqliteFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing configurations: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Check if YAML file exists
	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s (parameter set %q)\n", *sqliteFile, *name)

	// Load YAML configuration
	configData, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println("DRY RUN - No changes will be made")
		printConfigSummary(configData)
		return
	}

	provider, err := config.NewSQLiteProvider(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening SQLite database: %v\n", err)
		os.Exit(1)
	}
	defer provider.Close()

	if err := provider.SaveConfig(*name, configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error storing configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s -config-name %s\n", *sqliteFile, *name)
}

func listConfigs(sqliteFile string) error {
	provider, err := config.NewSQLiteProvider(sqliteFile)
	if err != nil {
		return err
	}
	defer provider.Close()

	names, err := provider.ListConfigs()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func printConfigSummary(c *config.ConfigData) {
	body, err := config.MarshalYAML(c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering configuration: %v\n", err)
		return
	}
	fmt.Printf("\nEffective configuration:\n%s", body)
}
