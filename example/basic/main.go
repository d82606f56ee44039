package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/siherrmann/filingqa"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// SEC EDGAR rejects requests without a contact user agent
	config := helper.DefaultConfiguration()
	config.SEC.UserAgent = os.Getenv("SEC_USER_AGENT")
	if config.SEC.UserAgent == "" {
		config.SEC.UserAgent = "filingqa example admin@example.com"
	}

	qa, err := filingqa.New(config, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create filingqa: %v", err)
	}
	defer qa.Close()

	ctx := context.Background()

	fmt.Println("Indexing the latest Apple 10-K...")
	result := qa.IndexFiling(ctx, "AAPL", model.FilingType10K, false)
	if result.Err != nil {
		log.Fatalf("Failed to index filing: %v", result.Err)
	}
	fmt.Printf("%s (%d chunks)\n", result.Message, result.ChunksCreated)

	query := "What were Apple's main revenue drivers?"
	fmt.Printf("\nQuerying: %s\n", query)

	answer, err := qa.Answer(ctx, query, "AAPL")
	if err != nil {
		log.Fatalf("Failed to answer: %v", err)
	}

	for _, section := range answer.Answer.Sections {
		fmt.Printf("\n[%s]\n", section.Component)
		if section.Props.Title != "" {
			fmt.Println(section.Props.Title)
		}
		if section.Props.Text != "" {
			fmt.Println(section.Props.Text)
		}
		for _, item := range section.Props.Items {
			fmt.Printf("  - %s\n", item)
		}
		for _, row := range section.Props.Rows {
			fmt.Printf("  %v\n", row)
		}
	}

	fmt.Printf("\nConfidence: %s\n", answer.Answer.Metadata.Confidence)
	fmt.Printf("Sources: %d\n", len(answer.Sources))
	for _, s := range answer.Sources {
		fmt.Printf("  [%d] %s %s %s (%.2f)\n", s.ID, s.Ticker, s.FilingType, s.Section, s.Score)
	}

	in, out := answer.Metrics.Tokens()
	fmt.Printf("\nTokens: %d in, %d out\n", in, out)
	fmt.Println("\nBasic example completed successfully!")
}
