package models

import (
	"errors"
	"time"

	"github.com/qaforge/backend/pkg/hashutil"
)

const StatusActive = "active"

var ErrIncompleteRecord = errors.New("question and answer are required")

// Collection is a named bucket of generated records.
type Collection struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// SourceSnapshot is one fetched-and-extracted capture of a URL. It is
// written once per successful fetch and never mutated.
type SourceSnapshot struct {
	ID           string
	CollectionID string
	URL          string
	UserAgent    string
	Content      string
	URLHash      string
	RetrievedAt  time.Time
}

// CleanedText is the model-cleaned version of a snapshot's content.
type CleanedText struct {
	ID         string
	SnapshotID string
	Content    string
	Language   string
	Model      string
	CreatedAt  time.Time
}

type RecordInput struct {
	Question  string `json:"question"`
	Context   string `json:"context"`
	SourceURL string `json:"source_url"`
	Index     int    `json:"index"`
}

type RecordOutput struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// Record is one persisted question-answer unit. Its id is the content hash
// of (question, context, source URL), which doubles as the exact-duplicate
// key.
type Record struct {
	ID             string
	CollectionID   string
	SnapshotID     string
	Input          RecordInput
	ExpectedOutput RecordOutput
	Metadata       map[string]interface{}
	Status         string
	Model          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewRecord builds a Record from one generated candidate. The question and
// context are normalized before hashing so formatting noise cannot split
// identical content into distinct ids. Confidence defaults to 1.0 when the
// generator did not report one.
func NewRecord(question, answer, context string, confidence float64, sourceURL, snapshotID, collectionID, model string, index int) (*Record, error) {
	question = hashutil.NormalizeText(question)
	answer = hashutil.NormalizeText(answer)

	if question == "" || answer == "" {
		return nil, ErrIncompleteRecord
	}
	if confidence <= 0 {
		confidence = 1.0
	}

	id := hashutil.ContentHash(question, context, sourceURL)
	now := time.Now().UTC()

	return &Record{
		ID:           id,
		CollectionID: collectionID,
		SnapshotID:   snapshotID,
		Input: RecordInput{
			Question:  question,
			Context:   context,
			SourceURL: sourceURL,
			Index:     index,
		},
		ExpectedOutput: RecordOutput{
			Answer:     answer,
			Confidence: confidence,
		},
		Metadata: map[string]interface{}{
			"generation_timestamp": now.Format(time.RFC3339),
			"question_length":      len(question),
			"answer_length":        len(answer),
			"context_length":       len(context),
			"content_hash":         id,
		},
		Status:    StatusActive,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ExportItem is the dataset-item shape consumed by downstream exporters.
func (r *Record) ExportItem() map[string]interface{} {
	item := map[string]interface{}{
		"id":              r.ID,
		"input":           r.Input,
		"expected_output": r.ExpectedOutput,
	}
	if len(r.Metadata) > 0 {
		item["metadata"] = r.Metadata
	}
	return item
}
