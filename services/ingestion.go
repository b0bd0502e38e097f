package services

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docanalyzer-backend/internal/ai"
	"docanalyzer-backend/internal/logger"
	"docanalyzer-backend/internal/vectorstore"
	"docanalyzer-backend/models"
)

// IngestionService runs the build phase for one document: extract, profile,
// chunk, embed, persist, index. Rerunning it for the same document is safe
// and overwrites all prior artifacts.
type IngestionService struct {
	documents  *mongo.Collection
	chunkStore *ChunkStore
	extractor  *Extractor
	profiler   *Profiler
	chunker    *Chunker
	embedder   ai.Embedder
	store      *vectorstore.Store
	storageDir string
}

func NewIngestionService(
	db *mongo.Database,
	chunkStore *ChunkStore,
	extractor *Extractor,
	profiler *Profiler,
	chunker *Chunker,
	embedder ai.Embedder,
	store *vectorstore.Store,
	storageDir string,
) *IngestionService {
	return &IngestionService{
		documents:  db.Collection("documents"),
		chunkStore: chunkStore,
		extractor:  extractor,
		profiler:   profiler,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		storageDir: storageDir,
	}
}

// IngestDocument processes the document end to end. On any failure the
// document is marked failed with the error message; the vector index is only
// swapped in after the full build succeeds.
func (is *IngestionService) IngestDocument(ctx context.Context, documentID primitive.ObjectID) error {
	tracer := otel.Tracer("ingestion")
	ctx, span := tracer.Start(ctx, "ingestion.ingest_document")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", documentID.Hex()))

	var doc models.Document
	if err := is.documents.FindOne(ctx, bson.M{"_id": documentID}).Decode(&doc); err != nil {
		return fmt.Errorf("document %s not found: %w", documentID.Hex(), err)
	}

	is.setProgress(ctx, documentID, models.StatusProcessing, 5, "")

	content, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return is.fail(ctx, documentID, fmt.Errorf("failed to read uploaded file: %w", err))
	}

	// Extract
	extraction, err := is.extractor.Extract(ctx, content, doc.OriginalName)
	if err != nil {
		return is.fail(ctx, documentID, err)
	}
	is.setProgress(ctx, documentID, models.StatusProcessing, 30, "")

	extractedPath, err := is.writeExtractedText(documentID, extraction.Text)
	if err != nil {
		return is.fail(ctx, documentID, err)
	}

	// Profile
	profile := is.profiler.Profile(extraction.Text)
	is.setProgress(ctx, documentID, models.StatusProcessing, 40, "")

	// Chunk
	chunks := is.chunker.ChunkText(documentID.Hex(), extraction.Text)
	if len(chunks) == 0 {
		return is.fail(ctx, documentID, fmt.Errorf("extracted text produced no chunks"))
	}
	is.setProgress(ctx, documentID, models.StatusProcessing, 50, "")

	// Embed
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := is.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return is.fail(ctx, documentID, err)
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}
	is.setProgress(ctx, documentID, models.StatusProcessing, 80, "")

	// Persist chunks, then build the in-memory index
	if err := is.chunkStore.ReplaceAll(ctx, documentID, chunks); err != nil {
		return is.fail(ctx, documentID, err)
	}

	collection := vectorstore.CollectionName(documentID.Hex())
	if err := is.store.Build(collection, indexEntries(chunks)); err != nil {
		return is.fail(ctx, documentID, fmt.Errorf("failed to build vector index: %w", err))
	}
	is.setProgress(ctx, documentID, models.StatusProcessing, 90, "")

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":              models.StatusCompleted,
			"progress":            100,
			"error_message":       "",
			"extracted_text_path": extractedPath,
			"extraction_method":   extraction.Method,
			"pages":               extraction.Pages,
			"profile":             profile,
			"index_handle":        collection,
			"chunk_count":         len(chunks),
			"processed_at":        now,
		},
	}
	if _, err := is.documents.UpdateOne(ctx, bson.M{"_id": documentID}, update); err != nil {
		return fmt.Errorf("failed to finalize document: %w", err)
	}

	logger.Info("Document ingested",
		"document_id", documentID.Hex(),
		"method", extraction.Method,
		"chunks", len(chunks),
		"type", profile.DocumentType,
	)
	return nil
}

// EnsureIndex lazily rebuilds the in-memory index for a completed document
// from its persisted chunks. Returns ErrIndexNotReady when the document has
// no chunks stored.
func (is *IngestionService) EnsureIndex(ctx context.Context, documentID primitive.ObjectID) (string, error) {
	collection := vectorstore.CollectionName(documentID.Hex())
	if is.store.Has(collection) {
		return collection, nil
	}

	chunks, err := is.chunkStore.LoadAll(ctx, documentID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: %s", vectorstore.ErrIndexNotReady, collection)
	}

	if err := is.store.Build(collection, indexEntries(chunks)); err != nil {
		return "", fmt.Errorf("failed to rebuild vector index: %w", err)
	}
	logger.Info("Vector index rebuilt from stored chunks",
		"document_id", documentID.Hex(), "chunks", len(chunks))
	return collection, nil
}

// RestoreIndexes rebuilds in-memory indexes for all documents that have
// persisted chunks. Called once at startup.
func (is *IngestionService) RestoreIndexes(ctx context.Context) error {
	ids, err := is.chunkStore.CompletedDocumentIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := is.EnsureIndex(ctx, id); err != nil {
			logger.Warn("Failed to restore index", "document_id", id.Hex(), "error", err)
		}
	}
	logger.Info("Vector indexes restored", "documents", len(ids))
	return nil
}

// DeleteDocumentData removes the document's chunks, index, and stored files.
func (is *IngestionService) DeleteDocumentData(ctx context.Context, doc *models.Document) error {
	is.store.Drop(vectorstore.CollectionName(doc.ID.Hex()))
	if err := is.chunkStore.DeleteAll(ctx, doc.ID); err != nil {
		return err
	}
	if doc.FilePath != "" {
		os.Remove(doc.FilePath)
	}
	if doc.ExtractedTextPath != "" {
		os.Remove(doc.ExtractedTextPath)
	}
	return nil
}

func (is *IngestionService) writeExtractedText(documentID primitive.ObjectID, text string) (string, error) {
	dir := filepath.Join(is.storageDir, "extracted")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create extracted text dir: %w", err)
	}

	path := filepath.Join(dir, documentID.Hex()+".txt.gz")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create extracted text file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(text)); err != nil {
		return "", fmt.Errorf("failed to write extracted text: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to flush extracted text: %w", err)
	}
	return path, nil
}

func (is *IngestionService) setProgress(ctx context.Context, documentID primitive.ObjectID, status string, progress int, errMsg string) {
	update := bson.M{"$set": bson.M{
		"status":        status,
		"progress":      progress,
		"error_message": errMsg,
	}}
	if _, err := is.documents.UpdateOne(ctx, bson.M{"_id": documentID}, update); err != nil {
		logger.Warn("Failed to update document progress", "document_id", documentID.Hex(), "error", err)
	}
}

func (is *IngestionService) fail(ctx context.Context, documentID primitive.ObjectID, cause error) error {
	logger.Error("Document ingestion failed", "document_id", documentID.Hex(), "error", cause)
	is.setProgress(ctx, documentID, models.StatusFailed, 0, cause.Error())
	return cause
}

func indexEntries(chunks []models.DocumentChunk) []vectorstore.Entry {
	entries := make([]vectorstore.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = vectorstore.Entry{
			ChunkID: chunk.ChunkID,
			Order:   chunk.Order,
			Text:    chunk.Text,
			Vector:  chunk.Vector,
		}
	}
	return entries
}
