package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dvloznov/spendiq/internal/analyses"
	"github.com/dvloznov/spendiq/internal/app"
	"github.com/dvloznov/spendiq/internal/auth"
	"github.com/dvloznov/spendiq/internal/blob/gcs"
	"github.com/dvloznov/spendiq/internal/config"
	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/jobs"
	"github.com/dvloznov/spendiq/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogJSON)

	switch os.Args[1] {
	case "analyze":
		runAnalyze(cfg, log)
	case "token":
		runToken(cfg, log)
	case "list":
		runList(cfg, log)
	case "inspect":
		runInspect(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("SpendIQ CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze   Run the statement analysis pipeline on a local or GCS PDF")
	fmt.Println("  token     Mint a bearer token for a user")
	fmt.Println("  list      List a user's analyses in the configured store")
	fmt.Println("  inspect   Show an analysis and its transactions")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// inlinePublisher captures the job so that the CLI can run it synchronously.
type inlinePublisher struct {
	mu   sync.Mutex
	jobs []*jobs.AnalyzeStatementJob
}

func (p *inlinePublisher) PublishAnalyzeStatement(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *inlinePublisher) Close() error { return nil }

func runAnalyze(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a local statement PDF")
	gcsURI := fs.String("gcs", "", "gs:// URI of a statement PDF")
	userID := fs.String("user", "cli", "User ID that owns the analysis")
	asJSON := fs.Bool("json", false, "Print the full record as JSON")
	fs.Parse(os.Args[2:])

	if (*filePath == "") == (*gcsURI == "") {
		log.Fatal().Msg("Usage: cli analyze (-file PATH | -gcs gs://BUCKET/OBJECT) [-user ID]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout+time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	data, fileName, err := readStatement(ctx, *filePath, *gcsURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read statement")
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer store.Close()

	blobs, err := app.OpenBlobs(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open blob store")
	}
	defer blobs.Close()

	runner, err := app.NewRunner(ctx, cfg, store, blobs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline runner")
	}

	svc := analyses.NewService(store, blobs, &inlinePublisher{}, analyses.Options{
		MaxUploadSizeBytes: cfg.MaxUploadSizeBytes,
		ListLimit:          cfg.ListLimit,
	})

	id, err := svc.Submit(ctx, *userID, analyses.SubmitRequest{
		FileName:    fileName,
		FileContent: base64.StdEncoding.EncodeToString(data),
		MimeType:    "application/pdf",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Submission rejected")
	}

	log.Info().Str("analysis_id", id).Str("file_name", fileName).Msg("Starting analysis")

	if err := runner.Run(ctx, id); err != nil {
		log.Error().Err(err).Str("analysis_id", id).Msg("Analysis failed")
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load analysis")
	}

	if *asJSON {
		printJSON(rec)
	} else {
		printRecord(rec)
	}
	if rec.Status != domain.StatusDone {
		os.Exit(1)
	}
}

func readStatement(ctx context.Context, filePath, gcsURI string) ([]byte, string, error) {
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", filePath, err)
		}
		return data, filepath.Base(filePath), nil
	}

	bucket, _, err := gcs.ParseURI(gcsURI)
	if err != nil {
		return nil, "", err
	}
	store, err := gcs.NewStore(ctx, bucket)
	if err != nil {
		return nil, "", err
	}
	defer store.Close()

	data, err := store.Get(ctx, gcsURI)
	if err != nil {
		return nil, "", err
	}
	return data, gcs.FileName(gcsURI), nil
}

func runToken(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user", "", "User ID to put in the token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot issue tokens; check JWT_SECRET")
	}

	token, err := issuer.Issue(*userID, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	fmt.Println(token)
}

func runList(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	userID := fs.String("user", "", "User ID whose analyses to list")
	limit := fs.Int("limit", cfg.ListLimit, "Maximum number of analyses")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer store.Close()

	recs, err := store.ListByUser(ctx, *userID, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list analyses")
	}

	if len(recs) == 0 {
		fmt.Println("No analyses found.")
		return
	}
	for _, rec := range recs {
		fmt.Printf("%s  %-10s  %-10s  %3d tx  %s  %s\n",
			rec.ID, rec.Status, rec.Stage, rec.TransactionCount,
			rec.CreatedAt.Format(time.RFC3339), rec.FileName)
	}
}

func runInspect(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	analysisID := fs.String("id", "", "Analysis ID to inspect")
	asJSON := fs.Bool("json", false, "Print the full record as JSON")
	showText := fs.Bool("raw-text", false, "Print the stored text preview")
	fs.Parse(os.Args[2:])

	if *analysisID == "" {
		log.Fatal().Msg("Error: --id is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer store.Close()

	rec, err := store.Get(ctx, *analysisID)
	if err != nil {
		log.Fatal().Err(err).Str("analysis_id", *analysisID).Msg("Failed to load analysis")
	}

	if *asJSON {
		printJSON(rec)
		return
	}
	printRecord(rec)
	if *showText {
		fmt.Printf("\n=== Raw text preview ===\n%s\n", rec.RawText)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func printRecord(rec *domain.AnalysisRecord) {
	fmt.Println("=== Analysis ===")
	fmt.Printf("ID:       %s\n", rec.ID)
	fmt.Printf("User:     %s\n", rec.UserID)
	fmt.Printf("File:     %s\n", rec.FileName)
	fmt.Printf("Status:   %s (%s)\n", rec.Status, rec.Stage)
	fmt.Printf("Created:  %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", rec.UpdatedAt.Format(time.RFC3339))
	if rec.Error != "" {
		fmt.Printf("Error:    %s\n", rec.Error)
	}

	if res := rec.Result; res != nil {
		s := res.Summary
		fmt.Println("\n=== Summary ===")
		fmt.Printf("Period:   %s to %s\n", s.PeriodStart, s.PeriodEnd)
		fmt.Printf("Spent:    %.2f\n", s.TotalSpent)
		fmt.Printf("Received: %.2f\n", s.TotalReceived)
		fmt.Printf("Net:      %.2f\n", s.NetFlow)

		for _, m := range res.Monthly {
			fmt.Printf("  %s  spent %.2f  received %.2f  net %.2f\n", m.Month, m.Spent, m.Received, m.Net)
		}
		if len(res.Suspicious) > 0 {
			fmt.Println("\n=== Suspicious ===")
			for _, sus := range res.Suspicious {
				fmt.Printf("  %s  %.2f  %s: %s\n", sus.Date, sus.Amount, sus.Description, sus.Reason)
			}
		}
		if len(res.Suggestions) > 0 {
			fmt.Println("\n=== Suggestions ===")
			for _, sug := range res.Suggestions {
				fmt.Printf("  - %s\n", sug)
			}
		}
	}

	if len(rec.Transactions) == 0 {
		return
	}
	fmt.Printf("\n=== Transactions (%d) ===\n", len(rec.Transactions))
	for i, tx := range rec.Transactions {
		fmt.Printf("%3d. %s  %-6s %10.2f  %s", i+1, tx.Date, tx.Type, tx.Amount, tx.Description)
		if tx.Vendor != "" {
			fmt.Printf(" [%s]", tx.Vendor)
		}
		fmt.Println()
	}
}
