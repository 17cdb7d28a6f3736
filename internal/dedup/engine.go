package dedup

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/qaforge/backend/internal/storage/models"
	"github.com/qaforge/backend/pkg/hashutil"
	"github.com/qaforge/backend/pkg/logger"
)

// Kind classifies a candidate against the stored record set.
type Kind string

const (
	KindNew     Kind = "new"
	KindExact   Kind = "exact"
	KindSimilar Kind = "similar"
)

// Verdict is the outcome of a duplicate check. MatchID is set for exact and
// similar verdicts; Score is 1.0 for exact, the question similarity for
// similar, 0.0 for new.
type Verdict struct {
	Kind    Kind
	MatchID string
	Score   float64
}

// Store is the slice of persistence the engine needs.
type Store interface {
	RecordExists(ctx context.Context, id string) (bool, error)
	GetRecordsBySourceURL(ctx context.Context, url string) ([]models.Record, error)
	GetRecordsByCollection(ctx context.Context, collectionID string) ([]models.Record, error)
	DeleteRecords(ctx context.Context, ids []string) error
}

type Engine struct {
	store            Store
	contextThreshold float64
}

func NewEngine(store Store, contextThreshold float64) *Engine {
	if contextThreshold == 0 {
		contextThreshold = 0.95
	}
	return &Engine{store: store, contextThreshold: contextThreshold}
}

// CheckDuplicate runs the two-stage test. Stage 1 looks the content hash up
// globally: the hash is the primary key, so a collision in another
// collection is the same row and counts as exact. Stage 2 narrows to
// records from the same source URL and compares the question at the given
// threshold plus the context at the engine's fixed gate.
func (e *Engine) CheckDuplicate(ctx context.Context, question, answer, contextText, sourceURL string, threshold float64) (*Verdict, error) {
	id := hashutil.ContentHash(question, contextText, sourceURL)

	exists, err := e.store.RecordExists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("exact duplicate check failed: %w", err)
	}
	if exists {
		return &Verdict{Kind: KindExact, MatchID: id, Score: 1.0}, nil
	}

	candidates, err := e.store.GetRecordsBySourceURL(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("similarity candidate lookup failed: %w", err)
	}

	question = hashutil.NormalizeText(question)

	for _, cand := range candidates {
		qScore := Ratio(question, cand.Input.Question)
		if qScore < threshold {
			continue
		}
		if Ratio(contextText, cand.Input.Context) < e.contextThreshold {
			continue
		}

		logger.Debug("Similar question found",
			zap.String("match_id", cand.ID),
			zap.Float64("similarity", qScore),
		)
		return &Verdict{Kind: KindSimilar, MatchID: cand.ID, Score: qScore}, nil
	}

	return &Verdict{Kind: KindNew}, nil
}

// Pair is one similar question pair found by AnalyzeSimilar.
type Pair struct {
	IDA       string  `json:"record_a"`
	IDB       string  `json:"record_b"`
	Score     float64 `json:"similarity"`
	QuestionA string  `json:"question_a"`
	QuestionB string  `json:"question_b"`
}

// AnalyzeSimilar compares every pair of questions in a collection and
// reports the pairs at or above threshold, highest score first. Each
// unordered pair appears at most once.
func (e *Engine) AnalyzeSimilar(ctx context.Context, collectionID string, threshold float64) ([]Pair, error) {
	records, err := e.store.GetRecordsByCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection records: %w", err)
	}

	var pairs []Pair
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			score := Ratio(records[i].Input.Question, records[j].Input.Question)
			if score < threshold {
				continue
			}
			pairs = append(pairs, Pair{
				IDA:       records[i].ID,
				IDB:       records[j].ID,
				Score:     score,
				QuestionA: records[i].Input.Question,
				QuestionB: records[j].Input.Question,
			})
		}
	}

	sort.Slice(pairs, func(a, b int) bool { return pairs[a].Score > pairs[b].Score })

	logger.Info("Similarity analysis completed",
		zap.String("collection_id", collectionID),
		zap.Int("records", len(records)),
		zap.Int("similar_pairs", len(pairs)),
	)

	return pairs, nil
}

// Removal records one planned deletion and why.
type Removal struct {
	ID       string  `json:"id"`
	KeptID   string  `json:"kept_id"`
	Score    float64 `json:"similarity"`
	Question string  `json:"question"`
}

// CleanResult reports what a cleanup pass removed.
type CleanResult struct {
	TotalRecords int       `json:"total_records"`
	Removed      []Removal `json:"removed"`
}

// CleanSimilar removes near-duplicate records from a collection. The pass
// is two-phase: the full deletion plan is computed over an immutable
// snapshot of the records, then applied in one transaction, so a crash
// mid-pass never leaves a partial cleanup behind.
//
// For each pair at or above threshold the record with higher confidence
// wins; on equal confidence the older record wins. A record already doomed
// by an earlier pair is skipped in later pairs rather than resurrected as a
// keeper.
func (e *Engine) CleanSimilar(ctx context.Context, collectionID string, threshold float64) (*CleanResult, error) {
	records, err := e.store.GetRecordsByCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection records: %w", err)
	}

	doomed := make(map[string]bool)
	var removals []Removal

	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			a, b := &records[i], &records[j]
			if doomed[a.ID] || doomed[b.ID] {
				continue
			}

			score := Ratio(a.Input.Question, b.Input.Question)
			if score < threshold {
				continue
			}

			keep, remove := pickKeeper(a, b)
			doomed[remove.ID] = true
			removals = append(removals, Removal{
				ID:       remove.ID,
				KeptID:   keep.ID,
				Score:    score,
				Question: remove.Input.Question,
			})
		}
	}

	ids := make([]string, 0, len(removals))
	for _, r := range removals {
		ids = append(ids, r.ID)
	}

	if err := e.store.DeleteRecords(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to apply cleanup deletions: %w", err)
	}

	sort.Slice(removals, func(a, b int) bool { return removals[a].Score > removals[b].Score })

	logger.Info("Similarity cleanup completed",
		zap.String("collection_id", collectionID),
		zap.Int("records", len(records)),
		zap.Int("removed", len(removals)),
	)

	return &CleanResult{TotalRecords: len(records), Removed: removals}, nil
}

func pickKeeper(a, b *models.Record) (keep, remove *models.Record) {
	switch {
	case a.ExpectedOutput.Confidence > b.ExpectedOutput.Confidence:
		return a, b
	case b.ExpectedOutput.Confidence > a.ExpectedOutput.Confidence:
		return b, a
	case a.CreatedAt.Before(b.CreatedAt) || a.CreatedAt.Equal(b.CreatedAt):
		return a, b
	default:
		return b, a
	}
}
