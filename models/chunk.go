package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// DocumentChunk is the durable record of one chunk of a document's extracted
// text, stored in the document_chunks collection together with its embedding.
// The in-memory vector index is rebuildable from these records alone.
type DocumentChunk struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DocumentID  primitive.ObjectID `bson:"document_id" json:"document_id"`
	ChunkID     string             `bson:"chunk_id" json:"chunk_id"`
	Order       int                `bson:"order" json:"order"`
	StartIndex  int                `bson:"start_index" json:"start_index"`
	EndIndex    int                `bson:"end_index" json:"end_index"`
	Text        string             `bson:"text,omitempty" json:"text"`
	Compressed  []byte             `bson:"compressed_text,omitempty" json:"-"`
	Compression string             `bson:"compression,omitempty" json:"-"`
	CharCount   int                `bson:"char_count,omitempty" json:"char_count,omitempty"`
	WordCount   int                `bson:"word_count,omitempty" json:"word_count,omitempty"`
	Vector      []float32          `bson:"vector,omitempty" json:"-"`
}

// ChunkingConfig defines how extracted text is split. ChunkSize must be
// strictly greater than Overlap.
type ChunkingConfig struct {
	ChunkSize int `json:"chunk_size"`
	Overlap   int `json:"overlap"`
}
