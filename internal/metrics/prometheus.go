package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qaforge_pipeline_duration_seconds",
			Help:    "End-to-end ProcessURL duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	URLsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaforge_urls_processed_total",
			Help: "URLs run through the ingestion pipeline",
		},
		[]string{"status"},
	)

	QAGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qaforge_qa_candidates_total",
			Help: "QA candidates produced by the generator",
		},
	)

	RecordsStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qaforge_records_stored_total",
			Help: "New records persisted after deduplication",
		},
	)

	DuplicatesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaforge_duplicates_skipped_total",
			Help: "Candidates skipped as duplicates",
		},
		[]string{"kind"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qaforge_scrape_cache_hits_total",
			Help: "Fetches served from the scrape cache",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qaforge_scrape_cache_misses_total",
			Help: "Fetches that went to the network",
		},
	)

	FetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qaforge_fetch_failures_total",
			Help: "Fetches that failed after retry exhaustion",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaforge_llm_tokens_used_total",
			Help: "LLM tokens consumed",
		},
		[]string{"model", "type"},
	)

	RecordsCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qaforge_records_cleaned_total",
			Help: "Records removed by similarity cleanup",
		},
	)
)

func Init() {
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(URLsProcessed)
	prometheus.MustRegister(QAGenerated)
	prometheus.MustRegister(RecordsStored)
	prometheus.MustRegister(DuplicatesSkipped)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(FetchFailures)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(RecordsCleaned)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
