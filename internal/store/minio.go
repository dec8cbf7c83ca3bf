package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/config"
	"github.com/david/bid-matcher/internal/models"
)

// ObjectStorage wraps the MinIO client for the two buckets the pipeline
// touches: the records bucket it reads from and the outcomes bucket it
// writes to.
type ObjectStorage struct {
	client         *minio.Client
	recordsBucket  string
	outcomesBucket string
	logger         *zap.Logger
}

func NewObjectStorage(ctx context.Context, cfg config.MinIOConfig, logger *zap.Logger) (*ObjectStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	s := &ObjectStorage{
		client:         client,
		recordsBucket:  cfg.RecordsBucket,
		outcomesBucket: cfg.OutcomesBucket,
		logger:         logger,
	}

	for _, bucket := range []string{cfg.RecordsBucket, cfg.OutcomesBucket} {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *ObjectStorage) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
		s.logger.Info("created bucket", zap.String("bucket", bucket))
	}
	return nil
}

// GetRecord fetches and decodes an opportunity record by object key.
func (s *ObjectStorage) GetRecord(ctx context.Context, key string) (*models.Opportunity, error) {
	obj, err := s.client.GetObject(ctx, s.recordsBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching record %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", key, err)
	}

	var opp models.Opportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", key, err)
	}
	return &opp, nil
}

// GetAttachment fetches the raw bytes of an attachment object.
func (s *ObjectStorage) GetAttachment(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.recordsBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching attachment %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("reading attachment %s: %w", key, err)
	}
	return data, nil
}

// PutOutcome writes the full processing outcome under its deterministic key
// and returns the key.
func (s *ObjectStorage) PutOutcome(ctx context.Context, date time.Time, outcome *models.ProcessingOutcome) (string, error) {
	key := OutcomeKey(date, outcome.Kind, outcome.RecordID)
	if err := s.putJSON(ctx, s.outcomesBucket, key, outcome); err != nil {
		return "", err
	}
	return key, nil
}

// PutRunSummary writes the per-record run summary entry.
func (s *ObjectStorage) PutRunSummary(ctx context.Context, date time.Time, entry *models.RunSummaryEntry) (string, error) {
	key := RunSummaryKey(date, entry.RecordID)
	if err := s.putJSON(ctx, s.outcomesBucket, key, entry); err != nil {
		return "", err
	}
	return key, nil
}

func (s *ObjectStorage) putJSON(ctx context.Context, bucket, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// ListOutcomes returns all outcomes stored for one day and category.
func (s *ObjectStorage) ListOutcomes(ctx context.Context, date time.Time, kind models.OutcomeKind) ([]models.ProcessingOutcome, error) {
	var outcomes []models.ProcessingOutcome
	prefix := OutcomePrefix(date, kind)

	for info := range s.client.ListObjects(ctx, s.outcomesBucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, info.Err)
		}
		var outcome models.ProcessingOutcome
		if err := s.getJSON(ctx, s.outcomesBucket, info.Key, &outcome); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// ListRunSummaries returns one day's run summary entries.
func (s *ObjectStorage) ListRunSummaries(ctx context.Context, date time.Time) ([]models.RunSummaryEntry, error) {
	var entries []models.RunSummaryEntry
	prefix := RunSummaryPrefix(date)

	for info := range s.client.ListObjects(ctx, s.outcomesBucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, info.Err)
		}
		var entry models.RunSummaryEntry
		if err := s.getJSON(ctx, s.outcomesBucket, info.Key, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *ObjectStorage) getJSON(ctx context.Context, bucket, key string, v any) error {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("fetching %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}
