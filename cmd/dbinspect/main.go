// Package main provides a read-only inspection tool for a Folio database.
//
// It prints per-table counts and flags novels whose chapters were never
// fetched, which is the usual symptom of a scrape that died halfway.
//
// Usage:
//
//	DB_PATH=~/Folio/data/folio.db go run ./cmd/dbinspect
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Folio/data/folio.db")
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Printf("Path: %s\n", dbPath)
	fmt.Println()

	for _, table := range []string{"users", "novels", "chapters", "annotations", "bookmarks", "reading_positions", "sessions"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			log.Fatalf("Failed to count %s: %v", table, err)
		}
		fmt.Printf("%-18s %d\n", table, count)
	}
	fmt.Println()

	rows, err := db.Query(`
		SELECT n.id, n.title, n.chapter_count,
		       COUNT(c.novel_id) AS stored,
		       SUM(CASE WHEN c.fetched_at IS NOT NULL THEN 1 ELSE 0 END) AS fetched
		FROM novels n
		LEFT JOIN chapters c ON c.novel_id = n.id
		WHERE n.deleted_at IS NULL
		GROUP BY n.id
		ORDER BY n.created_at`)
	if err != nil {
		log.Fatalf("Failed to query novels: %v", err)
	}
	defer rows.Close()

	novels := 0
	incomplete := 0
	fmt.Println("=== Novels ===")
	for rows.Next() {
		var id, title string
		var declared, stored int
		var fetched sql.NullInt64
		if err := rows.Scan(&id, &title, &declared, &stored, &fetched); err != nil {
			log.Fatalf("Failed to scan novel: %v", err)
		}
		novels++

		mark := ""
		if int(fetched.Int64) < stored {
			mark = "  <- unfetched chapters"
			incomplete++
		}
		fmt.Printf("%s  %q  chapters: %d declared, %d stored, %d fetched%s\n",
			id, title, declared, stored, fetched.Int64, mark)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Failed to iterate novels: %v", err)
	}

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Novels: %d\n", novels)
	fmt.Printf("Novels with unfetched chapters: %d\n", incomplete)
}
