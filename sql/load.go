package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed filings.sql
var filingsSQL string

//go:embed chunks.sql
var chunksSQL string

// Function lists for verification
var FilingsFunctions = []string{
	"init_filings",
	"insert_filing",
	"select_filing",
	"select_latest_filing",
	"select_filings",
	"update_filing_status",
	"delete_filing",
	"delete_filing_by_rid",
}

var ChunksFunctions = []string{
	"init_chunks",
	"upsert_chunk",
	"select_chunks",
	"select_chunks_by_filing",
	"select_embedded_chunk_ids",
	"update_chunk_embedding",
	"clear_chunk_embeddings",
	"select_chunks_by_similarity",
	"count_chunks",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadFilingsSql loads filing-related SQL functions
func LoadFilingsSql(db *sql.DB, force bool) error {
	return loadFunctions(db, "filings", filingsSQL, FilingsFunctions, force)
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	return loadFunctions(db, "chunks", chunksSQL, ChunksFunctions, force)
}

// LoadAllSql loads all SQL functions. Filings come first as chunks reference them.
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadFilingsSql(db, force); err != nil {
		return err
	}

	if err := LoadChunksSql(db, force); err != nil {
		return err
	}

	return nil
}

func loadFunctions(db *sql.DB, name string, script string, functions []string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
