// Command import-gtfs performs the full five-table GTFS refresh for every
// agency in the registry: existing rows are deleted (stop_times have no
// stable key across imports, so a full refresh is the only safe reload),
// then stops, routes, calendar, trips and stop_times are re-imported in
// dependency order.
//
// Run manually or from a scheduled job; queries against a mid-run database
// may see a partially refreshed dataset, so schedule off-peak.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/yourorg/tokudoku/internal/config"
	appdb "github.com/yourorg/tokudoku/internal/db"
	"github.com/yourorg/tokudoku/internal/gtfs"
	"github.com/yourorg/tokudoku/internal/models"
)

func main() {
	_ = godotenv.Load()

	agencies, err := config.LoadAgencies(config.AgenciesFile())
	if err != nil {
		log.Fatalf("❌ agency registry: %v", err)
	}

	db, err := appdb.Connect()
	if err != nil {
		log.Fatalf("❌ db connect: %v", err)
	}
	defer db.Close()
	if err := appdb.EnsureSchema(db); err != nil {
		log.Fatalf("❌ ensure schema: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	fmt.Println("🗑️ clearing existing GTFS data...")
	if err := gtfs.PurgeAll(ctx, db); err != nil {
		log.Fatalf("❌ purge: %v", err)
	}

	loader := gtfs.NewLoader(nil)
	runID := uuid.NewString()
	results := make([]gtfs.AgencyResult, 0, len(agencies))

	for _, agency := range agencies {
		fmt.Printf("🚌 importing %s (%s)...\n", agency.ID, agency.Name)
		result := loader.ImportAgency(ctx, db, agency)
		results = append(results, result)
		if !result.Success {
			fmt.Printf("❌ %s failed: %s\n", agency.ID, result.Error)
			continue
		}
		for _, tr := range result.Tables {
			fmt.Printf("   %-16s %7d rows", tr.Table, tr.Rows)
			if tr.FailedBatches > 0 {
				fmt.Printf(" (%d batches failed)", tr.FailedBatches)
			}
			fmt.Println()
		}
	}

	gtfs.RecordImport(ctx, db, models.ImportMetadata{
		RunID:      runID,
		Source:     "CLIフルインポート",
		ImportedAt: time.Now().UTC(),
		FeedURL:    "https://api.gtfs-data.jp",
		Notes:      gtfs.SuccessNotes(results),
	})

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	fmt.Printf("✅ import complete: %d/%d agencies (run %s)\n", succeeded, len(results), runID)
}
