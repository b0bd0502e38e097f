package routes

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docanalyzer-backend/internal/config"
	"docanalyzer-backend/internal/logger"
	"docanalyzer-backend/internal/queue"
	"docanalyzer-backend/middleware"
	"docanalyzer-backend/models"
	"docanalyzer-backend/services"
	"docanalyzer-backend/utils"
)

// DocumentRoutes handles upload, listing, and lifecycle of documents.
type DocumentRoutes struct {
	cfg         *config.Config
	documents   *mongo.Collection
	messages    *mongo.Collection
	ingestion   *services.IngestionService
	asynqClient *asynq.Client
}

func NewDocumentRoutes(cfg *config.Config, db *mongo.Database, ingestion *services.IngestionService, asynqClient *asynq.Client) *DocumentRoutes {
	return &DocumentRoutes{
		cfg:         cfg,
		documents:   db.Collection("documents"),
		messages:    db.Collection("messages"),
		ingestion:   ingestion,
		asynqClient: asynqClient,
	}
}

func (dr *DocumentRoutes) Register(group *gin.RouterGroup) {
	group.POST("/documents", dr.Upload)
	group.GET("/documents", dr.List)
	group.GET("/documents/:id", dr.Get)
	group.DELETE("/documents/:id", dr.Delete)
	group.GET("/documents/:id/messages", dr.Messages)
}

// Upload accepts a multipart file, stores it, and starts ingestion. Small
// files are processed before the response; large files are queued and the
// client polls the document status.
func (dr *DocumentRoutes) Upload(c *gin.Context) {
	userID := middleware.GetUserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.RespondWithBadRequest(c, "No file provided", nil)
		return
	}

	if fileHeader.Size > dr.cfg.MaxFileSize {
		utils.RespondWithBadRequest(c,
			fmt.Sprintf("File exceeds maximum size of %d bytes", dr.cfg.MaxFileSize), nil)
		return
	}
	if fileHeader.Size == 0 {
		utils.RespondWithBadRequest(c, "File is empty", nil)
		return
	}

	uploadsDir := filepath.Join(dr.cfg.FileStorageDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		utils.RespondWithInternalError(c, "Failed to prepare storage", nil)
		return
	}

	storedName := uuid.NewString() + filepath.Ext(fileHeader.Filename)
	filePath := filepath.Join(uploadsDir, storedName)
	if err := c.SaveUploadedFile(fileHeader, filePath); err != nil {
		utils.RespondWithInternalError(c, "Failed to store file", nil)
		return
	}

	doc := models.Document{
		ID:           primitive.NewObjectID(),
		UserID:       userID,
		Filename:     storedName,
		OriginalName: fileHeader.Filename,
		FilePath:     filePath,
		Status:       models.StatusPending,
		UploadedAt:   time.Now(),
		Size:         fileHeader.Size,
	}
	if _, err := dr.documents.InsertOne(c.Request.Context(), doc); err != nil {
		os.Remove(filePath)
		utils.RespondWithInternalError(c, "Failed to create document record", nil)
		return
	}

	// Small files: ingest before responding so the document is immediately
	// queryable. Large files go through the worker.
	if fileHeader.Size <= dr.cfg.SyncProcessingLimit {
		if err := dr.ingestion.IngestDocument(c.Request.Context(), doc.ID); err != nil {
			dr.respondIngestionFailure(c, doc.ID, err)
			return
		}

		var processed models.Document
		if err := dr.documents.FindOne(c.Request.Context(), bson.M{"_id": doc.ID}).Decode(&processed); err != nil {
			utils.RespondWithInternalError(c, "Failed to load processed document", nil)
			return
		}
		c.JSON(http.StatusCreated, models.UploadResponse{
			ID:               processed.ID.Hex(),
			Filename:         processed.OriginalName,
			Status:           processed.Status,
			Pages:            processed.Pages,
			ExtractionMethod: processed.ExtractionMethod,
			ChunkCount:       processed.ChunkCount,
			Profile:          processed.Profile,
			Message:          "Document processed and ready for questions",
		})
		return
	}

	task, err := queue.NewDocumentIngestTask(doc.ID.Hex(), userID)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to create processing task", nil)
		return
	}
	info, err := dr.asynqClient.Enqueue(task)
	if err != nil {
		logger.Error("Failed to enqueue ingestion task", "document_id", doc.ID.Hex(), "error", err)
		utils.RespondWithServiceUnavailable(c, "Processing queue unavailable, try again later")
		return
	}

	c.JSON(http.StatusAccepted, models.UploadResponse{
		ID:       doc.ID.Hex(),
		Filename: doc.OriginalName,
		Status:   models.StatusPending,
		Message:  "Document queued for processing",
		TaskID:   info.ID,
	})
}

func (dr *DocumentRoutes) respondIngestionFailure(c *gin.Context, documentID primitive.ObjectID, err error) {
	var extractionErr *services.ExtractionError
	if errors.As(err, &extractionErr) {
		utils.RespondWithUnprocessable(c, "Could not extract text from this document",
			gin.H{"document_id": documentID.Hex(), "attempts": extractionErr.Attempts})
		return
	}
	logger.Error("Synchronous ingestion failed", "document_id", documentID.Hex(), "error", err)
	utils.RespondWithInternalError(c, "Document processing failed",
		gin.H{"document_id": documentID.Hex()})
}

// List returns the caller's documents, newest first.
func (dr *DocumentRoutes) List(c *gin.Context) {
	userID := middleware.GetUserID(c)

	cursor, err := dr.documents.Find(c.Request.Context(),
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}}),
	)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list documents", nil)
		return
	}
	defer cursor.Close(c.Request.Context())

	docs := []models.Document{}
	if err := cursor.All(c.Request.Context(), &docs); err != nil {
		utils.RespondWithInternalError(c, "Failed to decode documents", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

// Get returns one document with its processing status and profile.
func (dr *DocumentRoutes) Get(c *gin.Context) {
	doc, ok := dr.ownedDocument(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Delete removes a document, its chunks, its index, and its conversation.
func (dr *DocumentRoutes) Delete(c *gin.Context) {
	doc, ok := dr.ownedDocument(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := dr.ingestion.DeleteDocumentData(ctx, doc); err != nil {
		utils.RespondWithInternalError(c, "Failed to delete document data", nil)
		return
	}
	if _, err := dr.messages.DeleteMany(ctx, bson.M{"document_id": doc.ID}); err != nil {
		logger.Warn("Failed to delete document messages", "document_id", doc.ID.Hex(), "error", err)
	}
	if _, err := dr.documents.DeleteOne(ctx, bson.M{"_id": doc.ID}); err != nil {
		utils.RespondWithInternalError(c, "Failed to delete document", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": doc.ID.Hex()})
}

// Messages returns the document's conversation history in timestamp order.
func (dr *DocumentRoutes) Messages(c *gin.Context) {
	doc, ok := dr.ownedDocument(c)
	if !ok {
		return
	}

	cursor, err := dr.messages.Find(c.Request.Context(),
		bson.M{"document_id": doc.ID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load messages", nil)
		return
	}
	defer cursor.Close(c.Request.Context())

	msgs := []models.Message{}
	if err := cursor.All(c.Request.Context(), &msgs); err != nil {
		utils.RespondWithInternalError(c, "Failed to decode messages", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

// ownedDocument loads the :id document and enforces ownership. Documents
// owned by someone else return the same 404 as missing ones.
func (dr *DocumentRoutes) ownedDocument(c *gin.Context) (*models.Document, bool) {
	userID := middleware.GetUserID(c)

	documentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid document id", nil)
		return nil, false
	}

	var doc models.Document
	err = dr.documents.FindOne(c.Request.Context(),
		bson.M{"_id": documentID, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		utils.RespondWithNotFound(c, "Document not found")
		return nil, false
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load document", nil)
		return nil, false
	}
	return &doc, true
}
