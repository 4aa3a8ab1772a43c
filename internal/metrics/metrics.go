package metrics

import (
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// amountPrecision is the decimals assumed when exporting token amounts as floats.
const amountPrecision = 18

var (
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesnap_ticks_total",
			Help: "Total number of engine ticks",
		},
		[]string{"status"}, // "ok", "partial"
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "votesnap_tick_duration_seconds",
			Help:    "Duration of engine ticks in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
	)

	TickErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesnap_tick_errors_total",
			Help: "Total number of step failures inside engine ticks",
		},
		[]string{"step"}, // "sync", "notify", "fees", "emissions", "submit", "store"
	)

	ActiveTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "votesnap_active_tokens",
			Help: "Number of active bribe tokens per pool wrapper",
		},
		[]string{"wrapper"},
	)

	TokensSyncedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesnap_tokens_synced_total",
			Help: "Tokens added to or removed from active sets",
		},
		[]string{"change"}, // "added", "removed"
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesnap_claims_total",
			Help: "Upstream bribe and fee claims by outcome",
		},
		[]string{"kind", "outcome"}, // kind: "bribe"/"fee", outcome: "claimed"/"stored"/"deferred"/"empty"
	)

	DistributedAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesnap_distributed_amount_total",
			Help: "Amount distributed per token and bucket, in whole token units",
		},
		[]string{"token", "bucket"},
	)

	PartnerShareBps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "votesnap_partner_share_bps",
			Help: "Partner share applied to the latest distribution, in basis points",
		},
	)

	TopPoolWeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "votesnap_top_pool_weight",
			Help: "Net signed vote weight of each top pool",
		},
		[]string{"pool"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesnap_vote_submissions_total",
			Help: "Vote submissions pushed to governance",
		},
		[]string{"status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesnap_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "votesnap_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware returns a gorilla/mux middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Use the route template if available, otherwise use the path
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordTick records the outcome of one engine tick.
func RecordTick(snapshot types.TickSnapshot, duration time.Duration) {
	status := "ok"
	if len(snapshot.Errors) > 0 {
		status = "partial"
	}
	TicksTotal.WithLabelValues(status).Inc()
	TickDuration.Observe(duration.Seconds())

	for _, s := range snapshot.Syncs {
		TokensSyncedTotal.WithLabelValues("added").Add(float64(len(s.Added)))
		TokensSyncedTotal.WithLabelValues("removed").Add(float64(len(s.Removed)))
	}

	TopPoolWeight.Reset()
	for _, p := range snapshot.TopPools {
		if w, err := utils.SDKIntToFloat64(p.Weight, 0); err == nil {
			TopPoolWeight.WithLabelValues(p.Pool.Hex()).Set(w)
		}
	}
}

// RecordClaim records a bribe or fee claim.
func RecordClaim(kind string, r types.ClaimResult) {
	outcome := "claimed"
	switch {
	case !r.CaughtUp:
		outcome = "deferred"
	case r.Stored:
		outcome = "stored"
	case r.Amount.IsNil() || !r.Amount.IsPositive():
		outcome = "empty"
	}
	ClaimsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDistribution adds every bucket of a distribution to the distributed amount counters.
func RecordDistribution(d types.Distribution) {
	PartnerShareBps.Set(float64(d.PartnerBps))

	token := d.Token.Hex()
	addAmount(d.PartnerToken.Hex(), "partner", d.Partner)
	addAmount(token, "base_stakers", d.BaseStakers)
	addAmount(token, "lockers", d.Lockers)
	addAmount(token, "lp_stakers", d.LPStakers)
	addAmount(token, "treasury", d.Treasury)
	addAmount(token, "ecosystem", d.Ecosystem)
}

// RecordSubmission records a governance vote submission attempt.
func RecordSubmission(err error) {
	if err != nil {
		SubmissionsTotal.WithLabelValues("error").Inc()
		return
	}
	SubmissionsTotal.WithLabelValues("ok").Inc()
}

// RecordTickError records a failed step inside a tick.
func RecordTickError(step string) {
	TickErrorsTotal.WithLabelValues(step).Inc()
}

// SetActiveTokens sets the active set size gauge of a wrapper.
func SetActiveTokens(wrapper string, n int) {
	ActiveTokens.WithLabelValues(wrapper).Set(float64(n))
}

func addAmount(token, bucket string, amount sdkmath.Int) {
	if amount.IsNil() || !amount.IsPositive() {
		return
	}
	v, err := utils.SDKIntToFloat64(amount, amountPrecision)
	if err != nil {
		return
	}
	DistributedAmount.WithLabelValues(token, bucket).Add(v)
}
