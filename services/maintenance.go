package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"docanalyzer-backend/internal/logger"
	"docanalyzer-backend/models"
)

// MaintenanceService runs periodic cleanup jobs. Currently one job: mark
// documents stuck in processing as failed so they can be re-uploaded.
type MaintenanceService struct {
	scheduler *gocron.Scheduler
	documents *mongo.Collection
	staleFor  time.Duration
}

func NewMaintenanceService(db *mongo.Database, staleFor time.Duration) *MaintenanceService {
	return &MaintenanceService{
		scheduler: gocron.NewScheduler(time.UTC),
		documents: db.Collection("documents"),
		staleFor:  staleFor,
	}
}

// Start schedules the stale-processing sweep every 10 minutes and runs the
// scheduler in the background.
func (ms *MaintenanceService) Start() error {
	_, err := ms.scheduler.Every(10 * time.Minute).Tag("stale-processing-sweep").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := ms.sweepStaleProcessing(ctx); err != nil {
			logger.Error("Stale processing sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	ms.scheduler.StartAsync()
	logger.Info("Maintenance scheduler started", "stale_after", ms.staleFor.String())
	return nil
}

func (ms *MaintenanceService) Stop() {
	ms.scheduler.Stop()
}

// sweepStaleProcessing fails documents that entered processing before the
// staleness cutoff and never finished. Ingestion is restart-from-scratch, so
// there is nothing to resume.
func (ms *MaintenanceService) sweepStaleProcessing(ctx context.Context) error {
	cutoff := time.Now().Add(-ms.staleFor)

	result, err := ms.documents.UpdateMany(ctx,
		bson.M{
			"status":      models.StatusProcessing,
			"uploaded_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":        models.StatusFailed,
			"progress":      0,
			"error_message": "processing timed out",
		}},
	)
	if err != nil {
		return err
	}
	if result.ModifiedCount > 0 {
		logger.Warn("Marked stale documents as failed", "count", result.ModifiedCount)
	}
	return nil
}
