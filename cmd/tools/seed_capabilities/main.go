package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/david/bid-matcher/internal/ai"
	"github.com/david/bid-matcher/internal/config"
	"github.com/david/bid-matcher/internal/kb"
	"github.com/david/bid-matcher/internal/logger"
)

// Seeds the capability knowledge base from a JSON file of documents:
// [{"source_id": "...", "title": "...", "body": "...", "location": "..."}]
func main() {
	file := flag.String("file", "capabilities.json", "JSON file with capability documents")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}
	zlog, err := logger.New("info", "console")
	if err != nil {
		log.Fatal(err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *file, err)
	}

	var docs []kb.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		log.Fatalf("Failed to parse %s: %v", *file, err)
	}
	if len(docs) == 0 {
		log.Fatal("No documents to seed")
	}

	ctx := context.Background()
	pool, err := kb.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := kb.ApplyMigrations(ctx, pool, zlog); err != nil {
		log.Fatal(err)
	}

	llm := ai.NewClient(cfg.OpenAI, zlog)
	capabilities := kb.NewStore(pool, llm, zlog)

	seeded := 0
	for _, doc := range docs {
		if doc.SourceID == "" || doc.Body == "" {
			log.Printf("Skipping document with missing source_id or body: %+v", doc)
			continue
		}
		if err := capabilities.AddDocument(ctx, doc); err != nil {
			log.Printf("Failed to index %s: %v", doc.SourceID, err)
			continue
		}
		seeded++
	}

	total, err := capabilities.Count(ctx)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Seeded %d/%d documents, knowledge base now holds %d", seeded, len(docs), total)
}
