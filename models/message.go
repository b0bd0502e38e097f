package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a document's conversation. Assistant messages carry
// the chunk IDs used as evidence for the answer.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DocumentID primitive.ObjectID `bson:"document_id" json:"document_id"`
	UserID     string             `bson:"user_id" json:"user_id"`
	Role       string             `bson:"role" json:"role"`
	Content    string             `bson:"content" json:"content"`
	ChunksUsed []string           `bson:"chunks_used,omitempty" json:"chunks_used,omitempty"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}

type QueryRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Query      string `json:"query" binding:"required,min=1,max=2000"`
}

type QueryResponse struct {
	Reply      string    `json:"reply"`
	ChunksUsed []string  `json:"chunks_used,omitempty"`
	Grounded   bool      `json:"grounded"`
	Timestamp  time.Time `json:"timestamp"`
	LatencyMS  int64     `json:"latency_ms"`
}
