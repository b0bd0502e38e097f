package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docanalyzer-backend/models"
	"docanalyzer-backend/utils"
)

// ChunkStore persists chunks and their vectors in the document_chunks
// collection. Chunk text is compressed above the size cutoff; vectors are
// stored as-is. The in-memory index is rebuildable from these records alone.
type ChunkStore struct {
	collection *mongo.Collection
}

func NewChunkStore(db *mongo.Database) *ChunkStore {
	return &ChunkStore{collection: db.Collection("document_chunks")}
}

// ReplaceAll deletes any previous chunks for the document and inserts the new
// set. Reingestion always starts from a clean slate.
func (cs *ChunkStore) ReplaceAll(ctx context.Context, documentID primitive.ObjectID, chunks []models.DocumentChunk) error {
	if _, err := cs.collection.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		chunk.DocumentID = documentID
		chunk.ID = primitive.NilObjectID

		compressed, algorithm, err := utils.CompressText(chunk.Text)
		if err != nil {
			return fmt.Errorf("failed to compress chunk %s: %w", chunk.ChunkID, err)
		}
		if algorithm != utils.CompressionNone {
			chunk.Compressed = compressed
			chunk.Compression = string(algorithm)
			chunk.Text = ""
		}
		docs = append(docs, chunk)
	}

	if _, err := cs.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// LoadAll returns the document's chunks in order, with text decompressed.
func (cs *ChunkStore) LoadAll(ctx context.Context, documentID primitive.ObjectID) ([]models.DocumentChunk, error) {
	cursor, err := cs.collection.Find(ctx,
		bson.M{"document_id": documentID},
		options.Find().SetSort(bson.D{{Key: "order", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.DocumentChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}

	for i := range chunks {
		if len(chunks[i].Compressed) == 0 {
			continue
		}
		text, err := utils.DecompressText(chunks[i].Compressed, utils.CompressionAlgorithm(chunks[i].Compression))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress chunk %s: %w", chunks[i].ChunkID, err)
		}
		chunks[i].Text = text
		chunks[i].Compressed = nil
	}
	return chunks, nil
}

// DeleteAll removes every chunk belonging to the document.
func (cs *ChunkStore) DeleteAll(ctx context.Context, documentID primitive.ObjectID) error {
	_, err := cs.collection.DeleteMany(ctx, bson.M{"document_id": documentID})
	return err
}

// CompletedDocumentIDs lists the IDs of documents that have chunks stored,
// used at startup to rebuild in-memory indexes.
func (cs *ChunkStore) CompletedDocumentIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	raw, err := cs.collection.Distinct(ctx, "document_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list chunked documents: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
