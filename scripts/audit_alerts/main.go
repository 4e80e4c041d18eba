// audit_alerts - A utility to audit stored alerts and their delivery state
// This script helps identify alerts that never reached a channel and
// channels that keep failing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/options_advisor/internal/config"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/storage"
)

// staleAfter is how old an undelivered alert must be to count as stuck.
const staleAfter = 2 * time.Hour

// maskAccountID masks all but the last 4 characters of an account ID to prevent PII exposure
func maskAccountID(id string) string {
	if len(id) > 4 {
		return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
	}
	return id
}

// ChannelSummary counts delivery outcomes for one channel.
type ChannelSummary struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// AlertLine is one row of the report.
type AlertLine struct {
	CreatedAt time.Time         `json:"created_at"`
	ID        string            `json:"id"`
	Account   string            `json:"account"`
	Symbol    string            `json:"symbol"`
	Action    models.Action     `json:"action"`
	Severity  string            `json:"severity"`
	Delivery  map[string]string `json:"delivery"`
	LastError string            `json:"last_error,omitempty"`
}

// AuditResult is the full report.
type AuditResult struct {
	Alerts       []AlertLine               `json:"alerts"`
	Channels     map[string]ChannelSummary `json:"channels"`
	Acknowledged int                       `json:"acknowledged"`
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		jsonOutput = flag.Bool("json", false, "Output results as JSON")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *verbose {
		fmt.Printf("Using config: %s\n", *configPath)
		fmt.Printf("Storage: %s\n", cfg.Storage.Backend)
		for _, id := range cfg.Scanner.Accounts {
			fmt.Printf("Account ID: %s\n", maskAccountID(id))
		}
		fmt.Printf("\n")
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Storage.Backend, cfg.StorageTarget())
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	list, err := store.ListAlerts(ctx, storage.AlertFilter{Type: models.JobTypeOptionsScan, IncludeAcknowledged: true})
	if err != nil {
		log.Fatalf("Failed to list alerts: %v", err)
	}

	audit := buildAudit(list, expectedChannels(cfg))

	// Output results
	if *jsonOutput {
		output, err := json.MarshalIndent(audit, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal JSON: %v", err)
		}
		fmt.Println(string(output))
		return
	}

	printReport(audit)

	fmt.Printf("=== ANALYSIS ===\n")
	issues := analyzeAuditResults(audit, time.Now())
	if len(issues) > 0 {
		fmt.Printf("POTENTIAL ISSUES FOUND:\n")
		for i, issue := range issues {
			fmt.Printf("  %d. %s\n", i+1, issue)
		}
	} else {
		fmt.Printf("No obvious issues detected.\n")
	}
}

// expectedChannels collects every channel an enabled config routes to.
func expectedChannels(cfg *config.Config) []string {
	seen := map[string]bool{}
	var out []string
	for _, ac := range cfg.Alerts.Configs {
		if !ac.Enabled {
			continue
		}
		for _, ch := range ac.Channels {
			if !seen[ch] {
				seen[ch] = true
				out = append(out, ch)
			}
		}
	}
	sort.Strings(out)
	return out
}

func buildAudit(list []models.Alert, channels []string) *AuditResult {
	audit := &AuditResult{Channels: map[string]ChannelSummary{}}
	for _, a := range list {
		if a.Acknowledged {
			audit.Acknowledged++
			continue
		}
		line := AlertLine{
			CreatedAt: a.CreatedAt,
			ID:        a.ID,
			Account:   maskAccountID(a.AccountID),
			Symbol:    a.Symbol,
			Action:    a.Recommendation,
			Severity:  a.Severity,
			Delivery:  map[string]string{},
		}
		for _, ch := range channels {
			sum := audit.Channels[ch]
			rec, ok := a.DeliveryStatus[ch]
			switch {
			case !ok:
				sum.Pending++
				line.Delivery[ch] = "pending"
			case rec.Status == models.DeliverySent:
				sum.Sent++
				line.Delivery[ch] = string(rec.Status)
			default:
				sum.Failed++
				line.Delivery[ch] = string(rec.Status)
				line.LastError = rec.Error
			}
			audit.Channels[ch] = sum
		}
		audit.Alerts = append(audit.Alerts, line)
	}
	return audit
}

func printReport(audit *AuditResult) {
	fmt.Printf("=== ALERT AUDIT ===\n")
	fmt.Printf("Open alerts: %d (acknowledged: %d)\n\n", len(audit.Alerts), audit.Acknowledged)
	for _, l := range audit.Alerts {
		fmt.Printf("  %s  %-8s %-13s %s  [%s]\n", l.CreatedAt.Format(time.RFC3339), l.Severity, l.Action, l.Symbol, deliverySummary(l.Delivery))
		if l.LastError != "" {
			fmt.Printf("      last error: %s\n", l.LastError)
		}
	}
	fmt.Printf("\n")

	names := make([]string, 0, len(audit.Channels))
	for name := range audit.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := audit.Channels[name]
		fmt.Printf("Channel %-8s sent %d, failed %d, pending %d\n", name, s.Sent, s.Failed, s.Pending)
	}
	fmt.Printf("\n")
}

func deliverySummary(d map[string]string) string {
	parts := make([]string, 0, len(d))
	for ch, status := range d {
		parts = append(parts, ch+"="+status)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// analyzeAuditResults performs basic analysis to identify potential issues
func analyzeAuditResults(audit *AuditResult, now time.Time) []string {
	var issues []string

	// Nil-safety checks
	if audit == nil {
		return issues
	}

	for name, s := range audit.Channels {
		if s.Failed > 0 && s.Sent == 0 {
			issues = append(issues, fmt.Sprintf("Channel %s has %d failure(s) and no successful delivery - check its credentials", name, s.Failed))
		}
	}

	stuck := 0
	for _, l := range audit.Alerts {
		if now.Sub(l.CreatedAt) < staleAfter {
			continue
		}
		for _, status := range l.Delivery {
			if status != string(models.DeliverySent) {
				stuck++
				break
			}
		}
	}
	if stuck > 0 {
		issues = append(issues, fmt.Sprintf("%d alert(s) older than %s still undelivered - check quiet hours and thresholds", stuck, staleAfter))
	}

	if len(audit.Alerts) > 50 {
		issues = append(issues, fmt.Sprintf("High number of unacknowledged alerts (%d) - consider running cleanup_alerts", len(audit.Alerts)))
	}

	sort.Strings(issues)
	return issues
}
