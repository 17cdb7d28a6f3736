package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/backend/internal/dedup"
	"github.com/qaforge/backend/internal/llm"
	"github.com/qaforge/backend/internal/scrape"
	"github.com/qaforge/backend/internal/storage/sqlite"
)

type stubFetcher struct {
	text  string
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*scrape.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &scrape.Result{
		URL:         url,
		Text:        f.text,
		UserAgent:   "test-agent",
		RetrievedAt: time.Now().UTC(),
	}, nil
}

type stubGenerator struct {
	cleaned string
	pairs   []llm.QAPair
	qaErr   error
}

func (g *stubGenerator) CleanText(_ context.Context, text, _ string) string {
	if g.cleaned != "" {
		return g.cleaned
	}
	return text
}

func (g *stubGenerator) GenerateQA(_ context.Context, _, _, _ string) ([]llm.QAPair, error) {
	return g.pairs, g.qaErr
}

func testDB(t *testing.T) *sqlite.Client {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())
	return db
}

func testPipeline(t *testing.T, fetcher Fetcher, generator Generator) (*Pipeline, *sqlite.Client) {
	t.Helper()
	db := testDB(t)
	engine := dedup.NewEngine(db, 0)
	return New(fetcher, generator, engine, db, 0.9), db
}

func TestProcessURLStoresNewRecord(t *testing.T) {
	fetcher := &stubFetcher{text: "A B"}
	generator := &stubGenerator{
		cleaned: "A B",
		pairs:   []llm.QAPair{{Question: "What is A?", Answer: "A is B.", Confidence: 0.8}},
	}
	pipe, db := testPipeline(t, fetcher, generator)

	url := "https://example.com/page"
	result, err := pipe.ProcessURL(context.Background(), Request{
		URL:            url,
		CollectionName: "docs",
		QAModel:        "gpt-4",
	})
	require.NoError(t, err)

	assert.Equal(t, Counts{New: 1}, result.Counts)
	assert.Equal(t, 1, result.QAGenerated)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.CollectionID)
	assert.NotEmpty(t, result.SnapshotID)
	assert.Equal(t, 0.9, result.Threshold)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, url, rec.Input.SourceURL)
	assert.Equal(t, "What is A?", rec.Input.Question)
	assert.Equal(t, "A B", rec.Input.Context)
	assert.Equal(t, "A is B.", rec.ExpectedOutput.Answer)

	exists, err := db.RecordExists(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := db.CountRecords(context.Background(), result.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessURLIsIdempotentForExactDuplicates(t *testing.T) {
	fetcher := &stubFetcher{text: "A B"}
	generator := &stubGenerator{
		cleaned: "A B",
		pairs:   []llm.QAPair{{Question: "What is A?", Answer: "A is B.", Confidence: 0.8}},
	}
	pipe, db := testPipeline(t, fetcher, generator)

	req := Request{URL: "https://example.com/page", CollectionName: "docs"}

	first, err := pipe.ProcessURL(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Counts{New: 1}, first.Counts)

	second, err := pipe.ProcessURL(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Counts{ExactDuplicates: 1}, second.Counts)

	count, err := db.CountRecords(context.Background(), first.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessURLSkipsSimilarQuestions(t *testing.T) {
	fetcher := &stubFetcher{text: "A B"}
	generator := &stubGenerator{
		cleaned: "A B",
		pairs:   []llm.QAPair{{Question: "What is A?", Answer: "A is B.", Confidence: 0.8}},
	}
	pipe, db := testPipeline(t, fetcher, generator)

	req := Request{URL: "https://example.com/page", CollectionName: "docs"}
	first, err := pipe.ProcessURL(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, Counts{New: 1}, first.Counts)

	// Ratio("What is A?", "What is B?") is exactly 0.9, the default
	// threshold, and the context is identical.
	generator.pairs = []llm.QAPair{{Question: "What is B?", Answer: "B is something else.", Confidence: 0.8}}

	second, err := pipe.ProcessURL(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Counts{SimilarDuplicates: 1}, second.Counts)

	count, err := db.CountRecords(context.Background(), first.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessURLCustomThresholdAdmitsNearMatches(t *testing.T) {
	fetcher := &stubFetcher{text: "A B"}
	generator := &stubGenerator{
		cleaned: "A B",
		pairs:   []llm.QAPair{{Question: "What is A?", Answer: "A is B.", Confidence: 0.8}},
	}
	pipe, _ := testPipeline(t, fetcher, generator)

	req := Request{URL: "https://example.com/page", CollectionName: "docs"}
	_, err := pipe.ProcessURL(context.Background(), req)
	require.NoError(t, err)

	generator.pairs = []llm.QAPair{{Question: "What is B?", Answer: "B is something else.", Confidence: 0.8}}

	strict := 0.91
	req.SimilarityThreshold = &strict

	result, err := pipe.ProcessURL(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Counts{New: 1}, result.Counts)
	assert.Equal(t, strict, result.Threshold)
}

func TestProcessURLFetchFailureAborts(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("connection refused")}
	generator := &stubGenerator{}
	pipe, _ := testPipeline(t, fetcher, generator)

	_, err := pipe.ProcessURL(context.Background(), Request{URL: "https://example.com", CollectionName: "docs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch stage")
}

func TestProcessURLGenerationFailureAborts(t *testing.T) {
	fetcher := &stubFetcher{text: "A B"}
	generator := &stubGenerator{qaErr: errors.New("model unavailable")}
	pipe, _ := testPipeline(t, fetcher, generator)

	_, err := pipe.ProcessURL(context.Background(), Request{URL: "https://example.com", CollectionName: "docs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation stage")
}

func TestProcessURLBadCandidateDoesNotAbortBatch(t *testing.T) {
	fetcher := &stubFetcher{text: "A B"}
	generator := &stubGenerator{
		cleaned: "A B",
		pairs: []llm.QAPair{
			{Question: "What is A?", Answer: "", Confidence: 0.8},
			{Question: "Where does B come from?", Answer: "From A.", Confidence: 0.7},
		},
	}
	pipe, _ := testPipeline(t, fetcher, generator)

	result, err := pipe.ProcessURL(context.Background(), Request{URL: "https://example.com", CollectionName: "docs"})
	require.NoError(t, err)

	assert.Equal(t, Counts{New: 1}, result.Counts)
	assert.Equal(t, 2, result.QAGenerated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "candidate 0")
}

func TestResolveThresholdClamps(t *testing.T) {
	pipe, _ := testPipeline(t, &stubFetcher{}, &stubGenerator{})

	assert.Equal(t, 0.9, pipe.resolveThreshold(nil))

	low := -0.5
	assert.Equal(t, 0.0, pipe.resolveThreshold(&low))

	high := 3.0
	assert.Equal(t, 1.0, pipe.resolveThreshold(&high))

	ok := 0.75
	assert.Equal(t, 0.75, pipe.resolveThreshold(&ok))
}
