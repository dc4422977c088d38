// Command campaign-seed bulk-creates the initial-stage instances for a
// campaign from a JSON file of prefill records. Already-seeded records
// are skipped, so the command can be re-run after a partial failure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/auth/maskinporten"
	"regvil_tracker_backend/internal/docstore"
	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/internal/tracker"
	"regvil_tracker_backend/internal/workflow"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"
	"regvil_tracker_backend/platform/validator"
)

func main() {
	var (
		inputPath = flag.String("input", "", "path to the JSON file with prefill records")
		dryRun    = flag.Bool("dry-run", false, "validate records without creating instances")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	if *inputPath == "" {
		log.Error("missing -input flag")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := readRecords(*inputPath)
	if err != nil {
		log.Error("failed to read input", "path", *inputPath, "error", err)
		os.Exit(1)
	}
	log.Info("input loaded", "path", *inputPath, "records", len(records))

	val := validator.New()
	invalid := 0
	for i, rec := range records {
		if err := report.ValidateRecord(val, rec); err != nil {
			log.Error("invalid record", "row", i+1, "report_id", rec.ReportID, "error", err)
			invalid++
		}
	}
	if invalid > 0 {
		log.Error("aborting, input contains invalid records", "invalid", invalid, "total", len(records))
		os.Exit(1)
	}
	if *dryRun {
		log.Info("dry run, all records valid", "records", len(records))
		return
	}

	docs, err := docstore.NewMinIO(cfg)
	if err != nil {
		log.Error("failed to initialize document store", "error", err)
		os.Exit(1)
	}
	if err := docs.EnsureBucket(ctx); err != nil {
		log.Error("failed to ensure document bucket exists", "error", err, "bucket", cfg.DocStoreBucket)
		os.Exit(1)
	}

	tokens, err := maskinporten.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize maskinporten client", "error", err)
		os.Exit(1)
	}

	instances := altinn.NewInstanceClient(cfg, tokens, log)
	events := eventlog.NewStore(docs, log)
	tr := tracker.New(instances, events, docs, workflow.Default(), log)

	var created, skipped, failed int
	for _, rec := range records {
		if ctx.Err() != nil {
			log.Warn("interrupted", "created", created, "skipped", skipped, "failed", failed)
			os.Exit(1)
		}

		res, err := tr.SeedInitial(ctx, rec, rec.CompanyName)
		if err != nil {
			log.Error("seeding failed", "report_id", rec.ReportID, "org_number", rec.CompanyOrgNumber, "error", err)
			failed++
			continue
		}
		switch res.Outcome {
		case tracker.OutcomeSkipped:
			log.Info("record already seeded", "report_id", rec.ReportID, "org_number", rec.CompanyOrgNumber)
			skipped++
		default:
			created++
		}
	}

	log.Info("campaign seeding finished", "created", created, "skipped", skipped, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func readRecords(path string) ([]report.FlatRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []report.FlatRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}
