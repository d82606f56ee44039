package main

import (
	"fmt"
	"log/slog"

	"github.com/siherrmann/filingqa/database"
	"github.com/siherrmann/filingqa/model"
	"github.com/spf13/cobra"
)

var (
	askCompany   string
	indexType    string
	indexForce   bool
	reindexEmbed bool
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Answer a question from the indexed filings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qa, err := open()
		if err != nil {
			return err
		}
		defer qa.Close()

		if err := qa.LoadKnownCompanies(cmd.Context()); err != nil {
			slog.Warn("Could not load known companies", slog.String("error", err.Error()))
		}

		result, err := qa.Answer(cmd.Context(), args[0], askCompany)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [ticker]",
	Short: "Fetch and index the latest filing of a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qa, err := open()
		if err != nil {
			return err
		}
		defer qa.Close()

		result := qa.IndexFiling(cmd.Context(), args[0], indexType, indexForce)
		if err := printJSON(cmd, result); err != nil {
			return err
		}
		return result.Err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [ticker]",
	Short: "List stored filings, of one company or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qa, err := open()
		if err != nil {
			return err
		}
		defer qa.Close()

		ticker := ""
		if len(args) == 1 {
			ticker = model.NormalizeTicker(args[0])
		}
		filings, err := qa.Status(cmd.Context(), ticker)
		if err != nil {
			return err
		}

		if len(filings) == 0 {
			cmd.Println("No filings stored.")
			return nil
		}
		for _, f := range filings {
			cmd.Printf("  %-6s %-5s %s  %-18s chunks=%d\n", f.Ticker, f.FilingType, f.ReportDate.Format("2006-01-02"), f.Status(), f.NumChunks)
		}
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:       "reindex-vectors [hnsw|ivfflat]",
	Short:     "Rebuild the vector index",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{database.IndexTypeHNSW, database.IndexTypeIVFFlat},
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != database.IndexTypeHNSW && args[0] != database.IndexTypeIVFFlat {
			return fmt.Errorf("unknown index type %q", args[0])
		}

		qa, err := open()
		if err != nil {
			return err
		}
		defer qa.Close()

		err = qa.ReindexVectors(cmd.Context(), args[0], reindexEmbed)
		if err != nil {
			return err
		}
		cmd.Printf("Vector index rebuilt as %s\n", args[0])
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askCompany, "company", "", "ticker to answer about, skips name detection")
	indexCmd.Flags().StringVarP(&indexType, "type", "t", model.FilingType10K, "filing type, 10-K or 10-Q")
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "process again even if already indexed")
	reindexCmd.Flags().BoolVar(&reindexEmbed, "reembed", false, "drop and regenerate all embeddings first")

	rootCmd.AddCommand(askCmd, indexCmd, statusCmd, reindexCmd)
}
