// cleanup_alerts - A utility to acknowledge stale alerts in bulk
// This script will:
// 1. List every unacknowledged options_scan alert
// 2. Acknowledge the ones older than -days so delivery stops retrying them
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/eddiefleurent/options_advisor/internal/config"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		days       = flag.Int("days", 7, "Acknowledge alerts older than this many days")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without making changes")
		yes        = flag.Bool("yes", false, "Skip confirmation prompt")
	)
	flag.Parse()

	fmt.Printf("OPTIONS ADVISOR ALERT CLEANUP\n\n")

	if *days < 0 {
		log.Fatalf("-days must be >= 0, got %d", *days)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Config: %s\n", *configPath)
	fmt.Printf("Storage: %s\n", cfg.Storage.Backend)
	fmt.Printf("\n")

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Storage.Backend, cfg.StorageTarget())
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	list, err := store.ListAlerts(ctx, storage.AlertFilter{Type: models.JobTypeOptionsScan})
	if err != nil {
		log.Fatalf("Failed to list alerts: %v", err)
	}

	stale := staleAlerts(list, time.Now().AddDate(0, 0, -*days))
	fmt.Printf("Open alerts: %d, older than %d day(s): %d\n\n", len(list), *days, len(stale))
	if len(stale) == 0 {
		fmt.Println("Nothing to clean up")
		return
	}
	for _, a := range stale {
		fmt.Printf("  %s  %s %s (%s)\n", a.CreatedAt.Format("2006-01-02 15:04"), a.Recommendation, a.Symbol, a.ID)
	}
	fmt.Printf("\n")

	if *dryRun {
		fmt.Printf("DRY RUN: Would acknowledge %d alert(s)\n", len(stale))
		return
	}

	// Confirmation
	if !*yes {
		fmt.Printf("Acknowledge %d alert(s)? (yes/no): ", len(stale))
		var response string
		if _, err := fmt.Scanln(&response); err != nil {
			fmt.Printf("Error reading input: %v\n", err)
			return
		}
		if response != "yes" && response != "y" {
			fmt.Println("Cleanup cancelled")
			return
		}
	}

	acked, err := acknowledgeAll(ctx, store, stale)
	fmt.Printf("Acknowledged %d of %d alert(s)\n", acked, len(stale))
	if err != nil {
		log.Fatalf("Cleanup incomplete: %v", err)
	}
}

// staleAlerts returns unacknowledged alerts created before cutoff.
func staleAlerts(list []models.Alert, cutoff time.Time) []models.Alert {
	var out []models.Alert
	for _, a := range list {
		if !a.Acknowledged && a.CreatedAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

type acknowledger interface {
	AcknowledgeAlert(ctx context.Context, alertID string) error
}

// acknowledgeAll keeps going past individual failures and returns the first one.
func acknowledgeAll(ctx context.Context, store acknowledger, list []models.Alert) (int, error) {
	var (
		acked int
		first error
	)
	for _, a := range list {
		if err := store.AcknowledgeAlert(ctx, a.ID); err != nil {
			fmt.Printf("  %s: failed: %v\n", a.ID, err)
			if first == nil {
				first = fmt.Errorf("acknowledge %s: %w", a.ID, err)
			}
			continue
		}
		acked++
	}
	return acked, first
}
