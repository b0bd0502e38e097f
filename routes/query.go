package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"docanalyzer-backend/internal/ai"
	"docanalyzer-backend/internal/logger"
	"docanalyzer-backend/internal/vectorstore"
	"docanalyzer-backend/middleware"
	"docanalyzer-backend/models"
	"docanalyzer-backend/services"
	"docanalyzer-backend/utils"
)

// QueryRoutes handles question answering against processed documents.
type QueryRoutes struct {
	documents *mongo.Collection
	messages  *mongo.Collection
	ingestion *services.IngestionService
	pipeline  *services.RAGPipeline
	gemini    *ai.GeminiClient
}

func NewQueryRoutes(db *mongo.Database, ingestion *services.IngestionService, pipeline *services.RAGPipeline, gemini *ai.GeminiClient) *QueryRoutes {
	return &QueryRoutes{
		documents: db.Collection("documents"),
		messages:  db.Collection("messages"),
		ingestion: ingestion,
		pipeline:  pipeline,
		gemini:    gemini,
	}
}

func (qr *QueryRoutes) Register(group *gin.RouterGroup) {
	group.POST("/query", qr.Query)
}

// Query runs the read path: retrieve context for the question, generate an
// answer from it, persist the exchange with its evidence chunk IDs.
func (qr *QueryRoutes) Query(c *gin.Context) {
	started := time.Now()
	userID := middleware.GetUserID(c)

	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
		return
	}

	documentID, err := primitive.ObjectIDFromHex(req.DocumentID)
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid document id", nil)
		return
	}

	ctx := c.Request.Context()

	var doc models.Document
	err = qr.documents.FindOne(ctx, bson.M{"_id": documentID, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		utils.RespondWithNotFound(c, "Document not found")
		return
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load document", nil)
		return
	}

	switch doc.Status {
	case models.StatusCompleted:
	case models.StatusFailed:
		utils.RespondWithUnprocessable(c, "Document processing failed, re-upload to retry",
			gin.H{"error": doc.ErrorMessage})
		return
	default:
		utils.RespondWithConflict(c, "Document is still being processed")
		return
	}

	collection, err := qr.ingestion.EnsureIndex(ctx, documentID)
	if err != nil {
		if errors.Is(err, vectorstore.ErrIndexNotReady) {
			utils.RespondWithConflict(c, "Document index is not ready")
			return
		}
		utils.RespondWithInternalError(c, "Failed to prepare document index", nil)
		return
	}

	retrieval, err := qr.pipeline.Retrieve(ctx, collection, req.Query)
	if err != nil {
		qr.respondRetrievalError(c, req.Query, documentID, userID, err)
		return
	}

	hints := ai.AnswerHints{}
	if doc.Profile != nil {
		hints.DocumentType = doc.Profile.DocumentType
		hints.Themes = doc.Profile.Themes
		hints.Purpose = doc.Profile.Purpose
	}

	answer, err := qr.gemini.GenerateAnswer(ctx, req.Query, chunkTexts(retrieval), hints)
	if err != nil {
		logger.Error("Answer generation failed", "document_id", documentID.Hex(), "error", err)
		utils.RespondWithServiceUnavailable(c, "Answer generation is unavailable, try again later")
		return
	}

	qr.persistExchange(c, documentID, userID, req.Query, answer, retrieval.ChunkIDs)

	c.JSON(http.StatusOK, models.QueryResponse{
		Reply:      answer,
		ChunksUsed: retrieval.ChunkIDs,
		Grounded:   true,
		Timestamp:  time.Now(),
		LatencyMS:  time.Since(started).Milliseconds(),
	})
}

func (qr *QueryRoutes) respondRetrievalError(c *gin.Context, query string, documentID primitive.ObjectID, userID string, err error) {
	switch {
	case errors.Is(err, services.ErrNoRelevantContext):
		// Honest refusal, not an error: the document has nothing on this.
		reply := "The document does not contain information relevant to this question."
		qr.persistExchange(c, documentID, userID, query, reply, nil)
		c.JSON(http.StatusOK, models.QueryResponse{
			Reply:     reply,
			Grounded:  false,
			Timestamp: time.Now(),
		})
	case errors.Is(err, vectorstore.ErrIndexNotReady):
		utils.RespondWithConflict(c, "Document index is not ready")
	case errors.Is(err, ai.ErrEmbeddingUnavailable):
		utils.RespondWithServiceUnavailable(c, "Embedding service is unavailable, try again later")
	default:
		logger.Error("Retrieval failed", "document_id", documentID.Hex(), "error", err)
		utils.RespondWithInternalError(c, "Retrieval failed", nil)
	}
}

func (qr *QueryRoutes) persistExchange(c *gin.Context, documentID primitive.ObjectID, userID, question, answer string, chunksUsed []string) {
	ctx := c.Request.Context()
	now := time.Now()

	pair := []interface{}{
		models.Message{
			DocumentID: documentID,
			UserID:     userID,
			Role:       models.RoleUser,
			Content:    question,
			Timestamp:  now,
		},
		models.Message{
			DocumentID: documentID,
			UserID:     userID,
			Role:       models.RoleAssistant,
			Content:    answer,
			ChunksUsed: chunksUsed,
			Timestamp:  now.Add(time.Millisecond),
		},
	}
	if _, err := qr.messages.InsertMany(ctx, pair); err != nil {
		logger.Warn("Failed to persist conversation", "document_id", documentID.Hex(), "error", err)
	}
}

func chunkTexts(retrieval *services.RetrievalResult) []string {
	texts := make([]string, len(retrieval.Chunks))
	for i, chunk := range retrieval.Chunks {
		texts[i] = chunk.Text
	}
	return texts
}
