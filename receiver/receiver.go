package receiver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/bioc/pathwayPCA/lib/aespca"
	"github.com/bioc/pathwayPCA/lib/pathway"
	"github.com/bioc/pathwayPCA/lib/settings"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	MAX_REQUEST_BYTES = 64 << 20
)

var (
	decompositions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aespca_decompositions_total",
			Help: "Total number of decompositions, by result status.",
		},
		[]string{"status"},
	)
	solverFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aespca_solver_failures_total",
			Help: "Number of decompositions that fell back to SVD loadings because the sparse solver failed.",
		},
	)
	rejectedRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aespca_rejected_requests_total",
			Help: "Number of decomposition requests rejected as malformed.",
		},
	)
	iterationsHist = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aespca_iterations",
			Help:    "Number of sparse-solve / Procrustes rounds per decomposition.",
			Buckets: prometheus.LinearBuckets(0, 1, 21),
		},
	)
	decompositionDurationHist = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aespca_decomposition_duration_milliseconds",
			Help:    "Duration of decomposition calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		},
	)
	requestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aespca_requests_in_flight",
			Help: "Number of decomposition requests being processed.",
		},
	)
)

func init() {
	prometheus.MustRegister(decompositions)
	prometheus.MustRegister(solverFailures)
	prometheus.MustRegister(rejectedRequests)
	prometheus.MustRegister(iterationsHist)
	prometheus.MustRegister(decompositionDurationHist)
	prometheus.MustRegister(requestsInFlight)
}

// Observe records the metrics of one decomposition.
func Observe(outcome *pathway.Outcome) {
	if outcome == nil || outcome.Result == nil {
		return
	}
	decompositions.WithLabelValues(string(outcome.Result.Status)).Inc()
	if outcome.Result.Status == aespca.StatusFallback {
		solverFailures.Inc()
	}
	if outcome.Result.Usable() {
		iterationsHist.Observe(float64(outcome.Result.Iterations))
	}
	decompositionDurationHist.Observe(float64(outcome.Elapsed.Microseconds()) / 1000.0)
}

// A Service decomposes the matrices posted to it.
type Service struct {
	runner   *pathway.Runner
	settings settings.AESSettings
	logger   zerolog.Logger
}

// NewService returns a service that applies request settings on top of
// base.
func NewService(runner *pathway.Runner, base settings.AESSettings, logger zerolog.Logger) *Service {
	return &Service{runner: runner, settings: base, logger: logger}
}

func (s *Service) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/api/v1/decompose", s.Decompose).Methods("POST")
	router.HandleFunc("/healthz", s.Healthz).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

func (s *Service) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}

// Decompose reads a pathway.Job and answers with a datatypes.ResultMessage.
// Numerical failures are reported in the result status, not as HTTP errors.
func (s *Service) Decompose(w http.ResponseWriter, r *http.Request) {
	requestsInFlight.Inc()
	defer requestsInFlight.Dec()

	job := &pathway.Job{}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_REQUEST_BYTES))
	if err := decoder.Decode(job); err != nil {
		s.reject(w, err)
		return
	}
	result, outcome, err := s.runner.Run(job, s.settings)
	if err != nil {
		s.reject(w, err)
		return
	}
	Observe(outcome)
	if result.Status == aespca.StatusFallback {
		s.logger.Info().Str("pathway", job.Pathway).Ints("components", result.FailedComponents).
			Msg("decomposition fell back to svd")
	}

	body, err := result.MarshalJSON()
	if err != nil {
		s.logger.Error().Err(err).Str("pathway", job.Pathway).Msg("failed to encode result")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Service) reject(w http.ResponseWriter, err error) {
	rejectedRequests.Inc()
	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	s.logger.Info().Err(err).Int("status", status).Msg("rejected decomposition request")
	http.Error(w, err.Error(), status)
}
