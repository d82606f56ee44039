package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/siherrmann/filingqa"
	"github.com/siherrmann/filingqa/helper"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "filingqa",
	Short: "Ask questions about SEC filings",
	Long: `filingqa answers natural language questions about 10-K and 10-Q filings.
Filings are fetched from SEC EDGAR on first use, split into sections and
tables, embedded and stored in PostgreSQL with pgvector.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// open builds a FilingQA from the configuration file and the database
// environment variables.
func open() (*filingqa.FilingQA, error) {
	config, err := helper.LoadConfiguration(configPath)
	if err != nil {
		return nil, err
	}
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}
	return filingqa.New(config, dbConfig)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
