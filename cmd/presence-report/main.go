// presence-report builds a session report from the attendance database,
// after the hot per-response evidence has expired.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lcalzada-xor/presenced/internal/adapters/reporting"
	"github.com/lcalzada-xor/presenced/internal/adapters/storage"
	"github.com/lcalzada-xor/presenced/internal/core/domain"
	coreporting "github.com/lcalzada-xor/presenced/internal/core/services/reporting"
)

func main() {
	dbPath := flag.String("db", "", "Path to the SQLite attendance database")
	sessionID := flag.String("session", "", "Session id to report on")
	format := flag.String("format", "json", "Output format: json or pdf")
	outPath := flag.String("out", "", "Output file (default stdout, required for pdf)")
	flag.Parse()

	if *dbPath == "" || *sessionID == "" {
		fmt.Fprintln(os.Stderr, "usage: presence-report -db <path> -session <id> [-format json|pdf] [-out <file>]")
		os.Exit(2)
	}

	records, err := loadRecords(*dbPath, *sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	report := buildReport(*sessionID, records)
	report.Recommendations = coreporting.NewRecommendationEngine().Generate(report)

	var data []byte
	switch *format {
	case "json":
		data, err = json.MarshalIndent(report, "", "  ")
	case "pdf":
		data, err = reporting.NewPDFExporter().ExportSessionReport(report, records)
		if *outPath == "" {
			err = fmt.Errorf("pdf output requires -out")
		}
	default:
		err = fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *outPath == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*outPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "report written to %s (%d records)\n", *outPath, len(records))
}

func loadRecords(dbPath, sessionID string) ([]domain.AttendanceRecord, error) {
	store, err := storage.NewSQLiteAdapter(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records for session %s", sessionID)
	}
	return records, nil
}

// buildReport aggregates durable records the same way the live reporter
// aggregates evidence-store analyses. Overridden outcomes count as their
// overridden value.
func buildReport(sessionID string, records []domain.AttendanceRecord) domain.SessionReport {
	report := domain.SessionReport{
		SessionID:      sessionID,
		FlagTypeCounts: make(map[string]int),
		GeneratedAt:    time.Now().UnixMilli(),
	}

	for _, rec := range records {
		report.TotalResponses++
		if rec.Outcome != domain.OutcomePresent {
			report.FlaggedResponses++
		}
		switch domain.RiskLevel(rec.RiskScore) {
		case domain.RiskLow:
			report.RiskDistribution.Low++
		case domain.RiskMedium:
			report.RiskDistribution.Medium++
		default:
			report.RiskDistribution.High++
		}
		for _, flag := range rec.Flags.Tripped() {
			report.FlagTypeCounts[flag]++
		}
	}
	return report
}
