package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var totalTokens atomic.Int64

var (
	RopeTableBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rope_table_builds_total",
		Help: "Total number of cos/sin table builds by scaling kind",
	}, []string{"kind"})

	RopeTableDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "rope_table_build_duration_seconds",
		Help: "Duration of cos/sin table construction",
	})

	RopeExtensions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rope_dynamic_extensions_total",
		Help: "Times dynamic NTK scaling recomputed the inverse frequency vector",
	})

	ForwardDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "model_forward_duration_seconds",
		Help: "Duration of full model forward passes",
	})

	GeneratedTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generated_tokens_total",
		Help: "The total number of tokens generated",
	})

	ExpertSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moe_expert_selections_total",
		Help: "Expert routing decisions per layer",
	}, []string{"layer"})

	RouterLatency = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "moe_router_duration_seconds",
		Help: "Duration of MoE router logits and top-k selection",
	})

	NumericalInstability = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numerical_instability_total",
		Help: "Total number of NaN/Inf values detected",
	}, []string{"tensor", "type"})

	ContextLengthHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "context_length_tokens",
		Help:    "Distribution of sequence lengths processed",
		Buckets: []float64{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096},
	})

	ExportBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_batches_total",
		Help: "Arrow record batches shipped to the collector",
	})

	ExportDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "export_batch_duration_seconds",
		Help: "Duration of Arrow Flight DoPut calls",
	})
)

// RecordRopeTableBuild records one table construction for a scaling kind.
func RecordRopeTableBuild(kind string, d time.Duration) {
	RopeTableBuilds.WithLabelValues(kind).Inc()
	RopeTableDuration.Observe(d.Seconds())
}

// RecordRopeExtension records a dynamic-scaling inverse frequency recompute.
func RecordRopeExtension() {
	RopeExtensions.Inc()
}

// RecordForward records one forward pass over seqLen tokens.
func RecordForward(seqLen int, d time.Duration) {
	ForwardDuration.Observe(d.Seconds())
	ContextLengthHistogram.Observe(float64(seqLen))
}

// RecordGeneratedTokens records tokens produced by the generation loop.
func RecordGeneratedTokens(n int) {
	GeneratedTokensTotal.Add(float64(n))
	totalTokens.Add(int64(n))
}

// TotalGeneratedTokens returns the process-lifetime generated token count.
func TotalGeneratedTokens() int64 {
	return totalTokens.Load()
}

// RecordExpertSelection records routing decisions for a layer.
func RecordExpertSelection(layer string, count int) {
	ExpertSelections.WithLabelValues(layer).Add(float64(count))
}

// RecordRouterLatency records router logits + top-k duration.
func RecordRouterLatency(d time.Duration) {
	RouterLatency.Observe(d.Seconds())
}

// RecordNumericalInstability records NaN/Inf detections for a named tensor.
func RecordNumericalInstability(tensor string, nans, infs int) {
	if nans > 0 {
		NumericalInstability.WithLabelValues(tensor, "nan").Add(float64(nans))
	}
	if infs > 0 {
		NumericalInstability.WithLabelValues(tensor, "inf").Add(float64(infs))
	}
}

// RecordExportBatch records one Arrow Flight batch.
func RecordExportBatch(d time.Duration) {
	ExportBatchesTotal.Inc()
	ExportDuration.Observe(d.Seconds())
}
