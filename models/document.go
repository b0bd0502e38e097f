package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document represents one uploaded document and its progressively populated
// ingestion artifacts. A single ingestion pass owns the record at a time.
type Document struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            string             `bson:"user_id" json:"user_id"`
	Filename          string             `bson:"filename" json:"filename"`
	OriginalName      string             `bson:"original_name" json:"original_name"`
	FilePath          string             `bson:"file_path" json:"file_path"`
	ExtractedTextPath string             `bson:"extracted_text_path,omitempty" json:"extracted_text_path,omitempty"`
	ExtractionMethod  string             `bson:"extraction_method,omitempty" json:"extraction_method,omitempty"`
	Pages             int                `bson:"pages,omitempty" json:"pages,omitempty"`
	Profile           *DocumentProfile   `bson:"profile,omitempty" json:"profile,omitempty"`
	// IndexHandle names the vector collection for this document. Set only
	// after every chunk is embedded and inserted; an empty handle means the
	// document is not queryable yet.
	IndexHandle  string     `bson:"index_handle,omitempty" json:"index_handle,omitempty"`
	ChunkCount   int        `bson:"chunk_count,omitempty" json:"chunk_count,omitempty"`
	Status       string     `bson:"status" json:"status"`
	Progress     int        `bson:"progress" json:"progress"`
	ErrorMessage string     `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt   time.Time  `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	Size         int64      `bson:"size" json:"size"`
}

// DocumentProfile is the keyword-scored classification of a document.
type DocumentProfile struct {
	DocumentType string   `bson:"document_type" json:"document_type"`
	Confidence   float64  `bson:"confidence" json:"confidence"`
	Themes       []string `bson:"themes" json:"themes"`
	KeySections  []string `bson:"key_sections,omitempty" json:"key_sections,omitempty"`
	Purpose      string   `bson:"purpose,omitempty" json:"purpose,omitempty"`
	Scope        string   `bson:"scope,omitempty" json:"scope,omitempty"`
	Summary      string   `bson:"summary,omitempty" json:"summary,omitempty"`
}

// Document status lifecycle
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	ID               string           `json:"id"`
	Filename         string           `json:"filename"`
	Status           string           `json:"status"`
	Pages            int              `json:"pages,omitempty"`
	ExtractionMethod string           `json:"extraction_method,omitempty"`
	ChunkCount       int              `json:"chunk_count,omitempty"`
	Profile          *DocumentProfile `json:"profile,omitempty"`
	Message          string           `json:"message"`
	TaskID           string           `json:"task_id,omitempty"`
}
