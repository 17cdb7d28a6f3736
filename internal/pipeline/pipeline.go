package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qaforge/backend/internal/dedup"
	"github.com/qaforge/backend/internal/llm"
	"github.com/qaforge/backend/internal/metrics"
	"github.com/qaforge/backend/internal/scrape"
	"github.com/qaforge/backend/internal/storage/models"
	"github.com/qaforge/backend/pkg/hashutil"
	"github.com/qaforge/backend/pkg/logger"
)

const maxRecentErrors = 20

// Fetcher retrieves one URL's extracted text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*scrape.Result, error)
}

// Generator is the external language-model capability: cleaning and QA
// generation.
type Generator interface {
	CleanText(ctx context.Context, text, model string) string
	GenerateQA(ctx context.Context, text, targetLanguage, model string) ([]llm.QAPair, error)
}

// Checker classifies a candidate against the stored record set.
type Checker interface {
	CheckDuplicate(ctx context.Context, question, answer, contextText, sourceURL string, threshold float64) (*dedup.Verdict, error)
}

// Store is the persistence surface the pipeline writes through.
type Store interface {
	GetOrCreateCollection(ctx context.Context, name, description string) (*models.Collection, error)
	InsertSnapshot(ctx context.Context, snap *models.SourceSnapshot) error
	InsertCleanedText(ctx context.Context, ct *models.CleanedText) error
	InsertRecord(ctx context.Context, rec *models.Record) (bool, error)
}

// Request is one unit of ingestion work: a single source URL bound for a
// named collection.
type Request struct {
	URL                 string
	CollectionName      string
	CleaningModel       string
	TargetLanguage      string
	QAModel             string
	SimilarityThreshold *float64
}

// Counts aggregates per-run candidate dispositions.
type Counts struct {
	New               int `json:"new"`
	ExactDuplicates   int `json:"exact_duplicates"`
	SimilarDuplicates int `json:"similar_duplicates"`
}

// Result is what one ProcessURL call produced.
type Result struct {
	CollectionID string          `json:"collection_id"`
	SnapshotID   string          `json:"snapshot_id"`
	Records      []models.Record `json:"records"`
	Counts       Counts          `json:"counts"`
	QAGenerated  int             `json:"qa_generated"`
	Errors       []string        `json:"errors,omitempty"`
	Duration     float64         `json:"duration_seconds"`
	Rate         float64         `json:"qa_per_second"`
	Threshold    float64         `json:"similarity_threshold"`
}

type Pipeline struct {
	fetcher          Fetcher
	generator        Generator
	checker          Checker
	store            Store
	defaultThreshold float64
}

func New(fetcher Fetcher, generator Generator, checker Checker, store Store, defaultThreshold float64) *Pipeline {
	if defaultThreshold <= 0 || defaultThreshold > 1 {
		defaultThreshold = 0.9
	}
	return &Pipeline{
		fetcher:          fetcher,
		generator:        generator,
		checker:          checker,
		store:            store,
		defaultThreshold: defaultThreshold,
	}
}

// ProcessURL runs the full ingestion for one source URL: resolve the
// collection, fetch and snapshot the page, clean the text, generate QA
// candidates, and persist every candidate that survives deduplication.
// Failures up to and including generation abort the run; per-candidate
// failures are recorded and skipped.
func (p *Pipeline) ProcessURL(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	threshold := p.resolveThreshold(req.SimilarityThreshold)

	logger.Info("Processing URL",
		zap.String("url", req.URL),
		zap.String("collection", req.CollectionName),
		zap.Float64("similarity_threshold", threshold),
	)

	collection, err := p.store.GetOrCreateCollection(ctx, req.CollectionName,
		fmt.Sprintf("Collection automatically created for %s", req.URL))
	if err != nil {
		metrics.URLsProcessed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resolve collection %q: %w", req.CollectionName, err)
	}

	fetched, err := p.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		metrics.URLsProcessed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch stage: %w", err)
	}

	snapshot := &models.SourceSnapshot{
		CollectionID: collection.ID,
		URL:          fetched.URL,
		UserAgent:    fetched.UserAgent,
		Content:      fetched.Text,
		URLHash:      hashutil.URLHash(fetched.URL),
		RetrievedAt:  fetched.RetrievedAt,
	}
	if err := p.store.InsertSnapshot(ctx, snapshot); err != nil {
		metrics.URLsProcessed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("snapshot stage: %w", err)
	}

	cleaned := p.generator.CleanText(ctx, fetched.Text, req.CleaningModel)

	if err := p.store.InsertCleanedText(ctx, &models.CleanedText{
		SnapshotID: snapshot.ID,
		Content:    cleaned,
		Language:   req.TargetLanguage,
		Model:      req.CleaningModel,
	}); err != nil {
		metrics.URLsProcessed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("cleaned text stage: %w", err)
	}

	candidates, err := p.generator.GenerateQA(ctx, cleaned, req.TargetLanguage, req.QAModel)
	if err != nil {
		metrics.URLsProcessed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("generation stage: %w", err)
	}
	metrics.QAGenerated.Add(float64(len(candidates)))

	result := &Result{
		CollectionID: collection.ID,
		SnapshotID:   snapshot.ID,
		QAGenerated:  len(candidates),
		Threshold:    threshold,
	}

	for i, cand := range candidates {
		if err := p.processCandidate(ctx, cand, i, cleaned, req, collection.ID, snapshot.ID, threshold, result); err != nil {
			result.addError(fmt.Sprintf("candidate %d: %v", i, err))
			logger.Warn("Candidate skipped",
				zap.Int("index", i),
				zap.String("url", req.URL),
				zap.Error(err),
			)
		}
	}

	result.Duration = time.Since(start).Seconds()
	if result.Duration > 0 {
		result.Rate = float64(result.QAGenerated) / result.Duration
	}

	metrics.URLsProcessed.WithLabelValues("success").Inc()
	metrics.PipelineDuration.Observe(result.Duration)

	logger.Info("URL processed",
		zap.String("url", req.URL),
		zap.Int("new", result.Counts.New),
		zap.Int("exact_duplicates", result.Counts.ExactDuplicates),
		zap.Int("similar_duplicates", result.Counts.SimilarDuplicates),
		zap.Float64("duration_seconds", result.Duration),
	)

	return result, nil
}

// processCandidate classifies and, when new, persists a single candidate.
// Errors here never abort the batch.
func (p *Pipeline) processCandidate(ctx context.Context, cand llm.QAPair, index int, cleaned string, req Request, collectionID, snapshotID string, threshold float64, result *Result) error {
	verdict, err := p.checker.CheckDuplicate(ctx, cand.Question, cand.Answer, cleaned, req.URL, threshold)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}

	switch verdict.Kind {
	case dedup.KindExact:
		result.Counts.ExactDuplicates++
		metrics.DuplicatesSkipped.WithLabelValues("exact").Inc()
		logger.Info("Exact duplicate skipped", zap.String("match_id", shortID(verdict.MatchID)))
		return nil

	case dedup.KindSimilar:
		result.Counts.SimilarDuplicates++
		metrics.DuplicatesSkipped.WithLabelValues("similar").Inc()
		logger.Info("Similar question skipped",
			zap.String("match_id", shortID(verdict.MatchID)),
			zap.Float64("similarity", verdict.Score),
		)
		return nil
	}

	rec, err := models.NewRecord(cand.Question, cand.Answer, cleaned, cand.Confidence,
		req.URL, snapshotID, collectionID, req.QAModel, index)
	if err != nil {
		return err
	}

	inserted, err := p.store.InsertRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	if !inserted {
		// Lost an insert race with a concurrent pipeline; the row exists,
		// so the outcome is an exact duplicate.
		result.Counts.ExactDuplicates++
		metrics.DuplicatesSkipped.WithLabelValues("exact").Inc()
		return nil
	}

	result.Counts.New++
	result.Records = append(result.Records, *rec)
	metrics.RecordsStored.Inc()
	return nil
}

func (p *Pipeline) resolveThreshold(t *float64) float64 {
	if t == nil {
		return p.defaultThreshold
	}
	if *t < 0 {
		return 0
	}
	if *t > 1 {
		return 1
	}
	return *t
}

func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	if len(r.Errors) > maxRecentErrors {
		r.Errors = r.Errors[len(r.Errors)-maxRecentErrors:]
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
