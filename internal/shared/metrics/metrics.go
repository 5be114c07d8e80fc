package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	requestsTotal          atomic.Uint64
	redirectsFollowedTotal atomic.Uint64
	runsStartedTotal       atomic.Uint64
	runsCompletedTotal     atomic.Uint64
	runsPartialTotal       atomic.Uint64
	runsFailedTotal        atomic.Uint64
	pollAttemptsTotal      atomic.Uint64
	artifactsTotal         atomic.Uint64
	jobsReceivedTotal      atomic.Uint64
	jobsSettledTotal       atomic.Uint64
	jobsRetriedTotal       atomic.Uint64
	jobsDroppedTotal       atomic.Uint64

	runDuration = newHistogram([]float64{1000, 10000, 60000, 300000, 900000, 1800000, 3600000})
)

// IncRequests counts outbound API requests, each redirect hop included.
func IncRequests() {
	requestsTotal.Add(1)
}

// IncRedirectsFollowed counts redirect hops re-sent by the requester.
func IncRedirectsFollowed() {
	redirectsFollowedTotal.Add(1)
}

// IncRunsStarted increments the started counter.
func IncRunsStarted() {
	runsStartedTotal.Add(1)
}

// IncRunsCompleted increments the completed counter.
func IncRunsCompleted() {
	runsCompletedTotal.Add(1)
}

// IncRunsPartial counts runs that created a list but could not trigger the analysis.
func IncRunsPartial() {
	runsPartialTotal.Add(1)
}

// IncRunsFailed increments the failed counter.
func IncRunsFailed() {
	runsFailedTotal.Add(1)
}

// IncPollAttempts counts status requests issued by the poller.
func IncPollAttempts() {
	pollAttemptsTotal.Add(1)
}

// IncArtifactsDownloaded counts stored result archives.
func IncArtifactsDownloaded() {
	artifactsTotal.Add(1)
}

// IncJobsReceived counts queue messages picked up by the worker.
func IncJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncJobsSettled counts messages deleted after their run reached a list.
func IncJobsSettled() {
	jobsSettledTotal.Add(1)
}

// IncJobsRetried counts messages left on the queue for redelivery.
func IncJobsRetried() {
	jobsRetriedTotal.Add(1)
}

// IncJobsDropped counts unparseable messages deleted without a run.
func IncJobsDropped() {
	jobsDroppedTotal.Add(1)
}

// ObserveRunDurationMs records a run duration in milliseconds.
func ObserveRunDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	runDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "gfw_requests_total", "Total GFW Pro API requests", requestsTotal.Load())
	writeCounter(&buf, "gfw_redirects_followed_total", "Total redirects re-sent with the original payload", redirectsFollowedTotal.Load())
	writeCounter(&buf, "workflow_runs_started_total", "Total workflow runs started", runsStartedTotal.Load())
	writeCounter(&buf, "workflow_runs_completed_total", "Total workflow runs completed", runsCompletedTotal.Load())
	writeCounter(&buf, "workflow_runs_partial_total", "Total workflow runs with a list but no triggered analysis", runsPartialTotal.Load())
	writeCounter(&buf, "workflow_runs_failed_total", "Total workflow runs failed", runsFailedTotal.Load())
	writeCounter(&buf, "workflow_poll_attempts_total", "Total analysis status requests", pollAttemptsTotal.Load())
	writeCounter(&buf, "workflow_artifacts_downloaded_total", "Total result archives stored", artifactsTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Total queue messages received", jobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_settled_total", "Total queue messages settled", jobsSettledTotal.Load())
	writeCounter(&buf, "worker_jobs_retried_total", "Total queue messages left for redelivery", jobsRetriedTotal.Load())
	writeCounter(&buf, "worker_jobs_dropped_total", "Total unrecoverable queue messages deleted", jobsDroppedTotal.Load())
	writeHistogram(&buf, "workflow_run_duration_ms", "Workflow run duration in milliseconds", runDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMillis returns the elapsed time since start in milliseconds.
func SinceMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
