package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordIDIgnoresAnswerAndConfidence(t *testing.T) {
	a, err := NewRecord("What is Go?", "A language.", "ctx", 0.8, "https://example.com", "s1", "c1", "gpt-4", 0)
	require.NoError(t, err)
	b, err := NewRecord("What is Go?", "A completely different answer.", "ctx", 0.2, "https://example.com", "s1", "c1", "gpt-4", 3)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
}

func TestNewRecordIDChangesWithIdentityFields(t *testing.T) {
	base, err := NewRecord("What is Go?", "a", "ctx", 1, "https://example.com", "s1", "c1", "m", 0)
	require.NoError(t, err)

	byQuestion, err := NewRecord("What is Rust?", "a", "ctx", 1, "https://example.com", "s1", "c1", "m", 0)
	require.NoError(t, err)
	byContext, err := NewRecord("What is Go?", "a", "other ctx", 1, "https://example.com", "s1", "c1", "m", 0)
	require.NoError(t, err)
	byURL, err := NewRecord("What is Go?", "a", "ctx", 1, "https://other.com", "s1", "c1", "m", 0)
	require.NoError(t, err)

	assert.NotEqual(t, base.ID, byQuestion.ID)
	assert.NotEqual(t, base.ID, byContext.ID)
	assert.NotEqual(t, base.ID, byURL.ID)
}

func TestNewRecordNormalizes(t *testing.T) {
	rec, err := NewRecord("  What   is Go? ", " A \n language. ", "ctx", 0.8, "https://example.com", "s1", "c1", "m", 0)
	require.NoError(t, err)

	assert.Equal(t, "What is Go?", rec.Input.Question)
	assert.Equal(t, "A language.", rec.ExpectedOutput.Answer)
}

func TestNewRecordRejectsIncomplete(t *testing.T) {
	_, err := NewRecord("", "answer", "ctx", 1, "u", "s", "c", "m", 0)
	assert.ErrorIs(t, err, ErrIncompleteRecord)

	_, err = NewRecord("question", "   ", "ctx", 1, "u", "s", "c", "m", 0)
	assert.ErrorIs(t, err, ErrIncompleteRecord)
}

func TestNewRecordConfidenceDefault(t *testing.T) {
	rec, err := NewRecord("q?", "a", "ctx", 0, "u", "s", "c", "m", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.ExpectedOutput.Confidence)

	rec, err = NewRecord("q?", "a", "ctx", -2, "u", "s", "c", "m", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.ExpectedOutput.Confidence)

	rec, err = NewRecord("q?", "a", "ctx", 0.4, "u", "s", "c", "m", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.4, rec.ExpectedOutput.Confidence)
}

func TestNewRecordMetadata(t *testing.T) {
	rec, err := NewRecord("What is Go?", "A language.", "ctx", 0.8, "https://example.com", "s1", "c1", "gpt-4", 2)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, rec.ID, rec.Metadata["content_hash"])
	assert.Equal(t, 2, rec.Input.Index)
	assert.Contains(t, rec.Metadata, "generation_timestamp")
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
}

func TestExportItem(t *testing.T) {
	rec, err := NewRecord("What is Go?", "A language.", "ctx", 0.8, "https://example.com", "s1", "c1", "gpt-4", 0)
	require.NoError(t, err)

	item := rec.ExportItem()
	assert.Equal(t, rec.ID, item["id"])
	assert.Equal(t, rec.Input, item["input"])
	assert.Equal(t, rec.ExpectedOutput, item["expected_output"])
	assert.Contains(t, item, "metadata")
}
