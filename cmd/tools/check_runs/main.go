package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/bid-matcher/internal/config"
	"github.com/david/bid-matcher/internal/logger"
	"github.com/david/bid-matcher/internal/store"
)

// Prints one day's run summaries as a table.
func main() {
	dateFlag := flag.String("date", "", "Run date (YYYY-MM-DD), defaults to today")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}
	zlog, err := logger.New("warn", "console")
	if err != nil {
		log.Fatal(err)
	}

	date := time.Now().UTC()
	if *dateFlag != "" {
		date, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			log.Fatalf("Invalid date %q: %v", *dateFlag, err)
		}
	}

	ctx := context.Background()
	objects, err := store.NewObjectStorage(ctx, cfg.MinIO, zlog)
	if err != nil {
		log.Fatal(err)
	}

	entries, err := objects.ListRunSummaries(ctx, date)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Record", "Outcome", "Score", "Duration", "Started At"})

	for _, e := range entries {
		duration := (time.Duration(e.DurationMS) * time.Millisecond).Round(time.Millisecond)
		t.AppendRow(table.Row{e.RecordID, e.Kind, e.Score, duration, e.StartedAt.Format("15:04:05")})
	}
	t.Render()
}
