package kb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/models"
)

// Embedder turns text into a vector. Satisfied by the openai client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the capability knowledge base: past performance write-ups,
// capability statements, and project summaries indexed by embedding.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *zap.Logger
}

func NewStore(pool *pgxpool.Pool, embedder Embedder, logger *zap.Logger) *Store {
	return &Store{pool: pool, embedder: embedder, logger: logger}
}

// Document is one capability entry to index.
type Document struct {
	SourceID string
	Title    string
	Body     string
	Location string
}

// Search embeds the query and returns the topN most similar capability
// snippets by cosine similarity. No rows is a valid result, not an error.
func (s *Store) Search(ctx context.Context, query string, topN int) ([]models.EvidenceSnippet, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT source_id, title, body, location,
		       COALESCE(1 - (embedding <=> $1), 0) AS similarity
		FROM capabilities
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(embedding), topN)
	if err != nil {
		return nil, fmt.Errorf("searching capabilities: %w", err)
	}
	defer rows.Close()

	var snippets []models.EvidenceSnippet
	for rows.Next() {
		var sn models.EvidenceSnippet
		if err := rows.Scan(&sn.SourceID, &sn.Title, &sn.Snippet, &sn.Location, &sn.RelevanceScore); err != nil {
			return nil, fmt.Errorf("scanning capability row: %w", err)
		}
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading capability rows: %w", err)
	}

	s.logger.Debug("capability search finished",
		zap.Int("top_n", topN),
		zap.Int("results", len(snippets)),
	)
	return snippets, nil
}

// AddDocument embeds and upserts one capability document, keyed by source_id.
func (s *Store) AddDocument(ctx context.Context, doc Document) error {
	embedding, err := s.embedder.Embed(ctx, doc.Title+"\n\n"+doc.Body)
	if err != nil {
		return fmt.Errorf("embedding document %s: %w", doc.SourceID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO capabilities (source_id, title, body, location, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (source_id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			location = EXCLUDED.location,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
	`, doc.SourceID, doc.Title, doc.Body, doc.Location, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.SourceID, err)
	}
	return nil
}

// Count returns the number of indexed capability documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM capabilities").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting capabilities: %w", err)
	}
	return n, nil
}
