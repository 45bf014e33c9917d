package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	InitiateSuccessCounter         = metrics.GetOrCreateCounter(`payments_initiate_total{result="success"}`)
	InitiateValidationErrorCounter = metrics.GetOrCreateCounter(`payments_initiate_total{result="validation_error"}`)
	InitiateAuthErrorCounter       = metrics.GetOrCreateCounter(`payments_initiate_total{result="auth_error"}`)
	InitiateGatewayErrorCounter    = metrics.GetOrCreateCounter(`payments_initiate_total{result="gateway_error"}`)
	InitiateStorageErrorCounter    = metrics.GetOrCreateCounter(`payments_initiate_total{result="storage_error"}`)

	CallbackProcessedCounter = metrics.GetOrCreateCounter(`payments_callback_total{result="processed"}`)
	CallbackDuplicateCounter = metrics.GetOrCreateCounter(`payments_callback_total{result="duplicate"}`)
	CallbackMalformedCounter = metrics.GetOrCreateCounter(`payments_callback_total{result="malformed"}`)
	CallbackUnknownCounter   = metrics.GetOrCreateCounter(`payments_callback_total{result="unknown"}`)

	ResolvedConfirmedCounter = metrics.GetOrCreateCounter(`payments_resolved_total{state="confirmed"}`)
	ResolvedFailedCounter    = metrics.GetOrCreateCounter(`payments_resolved_total{state="failed"}`)

	NotifySuccessCounter = metrics.GetOrCreateCounter(`payments_notify_total{result="success"}`)
	NotifyFailedCounter  = metrics.GetOrCreateCounter(`payments_notify_total{result="failed"}`)

	GrantSuccessCounter = metrics.GetOrCreateCounter(`payments_access_grant_total{result="success"}`)
	GrantFailedCounter  = metrics.GetOrCreateCounter(`payments_access_grant_total{result="failed"}`)

	AccessGateEligibleCounter   = metrics.GetOrCreateCounter(`payments_access_gate_total{result="eligible"}`)
	AccessGateIneligibleCounter = metrics.GetOrCreateCounter(`payments_access_gate_total{result="ineligible"}`)
	AccessGateErrorCounter      = metrics.GetOrCreateCounter(`payments_access_gate_total{result="error"}`)

	EventPublishFailedCounter = metrics.GetOrCreateCounter(`payments_event_publish_total{result="failed"}`)

	BotUpdateHandledCounter  = metrics.GetOrCreateCounter(`payments_bot_updates_total{result="handled"}`)
	BotUpdateRejectedCounter = metrics.GetOrCreateCounter(`payments_bot_updates_total{result="rejected"}`)

	InitiateDurationHistogram = metrics.GetOrCreateHistogram(`payments_initiate_duration_milliseconds`)
	CallbackDurationHistogram = metrics.GetOrCreateHistogram(`payments_callback_duration_milliseconds`)
)

func ObserveSince(h *metrics.Histogram, start time.Time) {
	h.Update(float64(time.Since(start).Milliseconds()))
}

// ObserveJob records one batch run of a background job.
func ObserveJob(job string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`payments_job_runs_total{job=%q,result=%q}`, job, result)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`payments_job_duration_milliseconds{job=%q}`, job)).Update(float64(time.Since(start).Milliseconds()))
}

// Handler exposes every registered metric in Prometheus text format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
}
