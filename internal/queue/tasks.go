package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"docanalyzer-backend/internal/logger"
)

const (
	TaskDocumentIngest = "document:ingest"
)

type DocumentIngestPayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

// NewDocumentIngestTask queues the build phase for one uploaded document.
func NewDocumentIngestTask(documentID, userID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentIngestPayload{
		DocumentID: documentID,
		UserID:     userID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDocumentIngest,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("ingestion"),
	), nil
}

// Ingester is the part of the ingestion service the worker needs.
type Ingester interface {
	IngestDocument(ctx context.Context, documentID primitive.ObjectID) error
}

// TaskProcessor dispatches queued tasks to their services.
type TaskProcessor struct {
	ingester Ingester
}

func NewTaskProcessor(ingester Ingester) *TaskProcessor {
	return &TaskProcessor{ingester: ingester}
}

func (p *TaskProcessor) HandleDocumentIngest(ctx context.Context, t *asynq.Task) error {
	var payload DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	documentID, err := primitive.ObjectIDFromHex(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("bad document id %q: %w", payload.DocumentID, asynq.SkipRetry)
	}

	logger.Info("Processing ingestion task", "document_id", payload.DocumentID, "user_id", payload.UserID)
	return p.ingester.IngestDocument(ctx, documentID)
}
