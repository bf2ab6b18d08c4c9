// Package httpapi is the HTTP surface of the discovery engine. Runs execute
// in the background; the checkpoint store is the source of truth for their
// progress, so handlers stay stateless.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/index"
	healthuc "github.com/marketlens/kwscout/internal/usecase/health"
)

// Collector starts and resumes discovery runs.
type Collector interface {
	Run(ctx context.Context, p RunParams, onProgress func(domain.Snapshot)) (*domain.CollectionProgress, error)
	Resume(ctx context.Context, runID string, onProgress func(domain.Snapshot)) (*domain.CollectionProgress, error)
}

// RunParams mirrors the collect usecase's run parameters.
type RunParams struct {
	RunID  string
	Pitch  string
	Facets domain.Facets
	Target int
}

// CheckpointReader loads run state for progress and keyword queries.
type CheckpointReader interface {
	Load(ctx context.Context, runID string) (*domain.CollectionProgress, error)
}

// Scorer annotates keyword batches with opportunity metrics.
type Scorer interface {
	ScoreKeywords(ctx context.Context, texts []string) ([]domain.ScoredKeyword, error)
}

// CorpusIndex answers similarity queries against the reference corpus.
type CorpusIndex interface {
	FindSimilar(ctx context.Context, queryText string, topK int) ([]index.Match, error)
	Exists(ctx context.Context, text string, threshold float64, exactMatchOnly bool) (bool, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the discovery API.
type Server struct {
	collector      Collector
	checkpoints    CheckpointReader
	scorer         Scorer
	corpus         CorpusIndex
	fuzzyThreshold float64
	health         *healthuc.Service
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server. fuzzyThreshold is the similarity
// cutoff used by fuzzy corpus existence checks.
func NewServer(
	collector Collector,
	checkpoints CheckpointReader,
	scorer Scorer,
	corpus CorpusIndex,
	fuzzyThreshold float64,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		collector:      collector,
		checkpoints:    checkpoints,
		scorer:         scorer,
		corpus:         corpus,
		fuzzyThreshold: fuzzyThreshold,
		health:         health,
		logger:         logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrRunNotFound, http.StatusNotFound, codeRunNotFound),
		sentinelHandler(domain.ErrEmptyPitch, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrSeedGeneration, http.StatusBadGateway, codeGenerationProviderError),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, codeGenerationProviderError),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrNotInitialized, http.StatusServiceUnavailable, codeIndexNotReady),
		sentinelHandler(domain.ErrInitialization, http.StatusServiceUnavailable, codeIndexNotReady),
	}
	return s
}

// Routes builds the API router. Middleware is attached by the caller.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/discoveries", s.startDiscovery)
		r.Get("/discoveries/{runID}", s.getDiscovery)
		r.Get("/discoveries/{runID}/keywords", s.getKeywords)
		r.Post("/discoveries/{runID}/resume", s.resumeDiscovery)
		r.Get("/corpus/similar", s.corpusSimilar)
		r.Get("/corpus/check", s.corpusCheck)
	})
	r.Get("/health", s.healthCheck)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

type startDiscoveryRequest struct {
	Pitch  string        `json:"pitch"`
	Facets domain.Facets `json:"facets"`
	Target int           `json:"target"`
}

type startDiscoveryResponse struct {
	RunID string       `json:"run_id"`
	Stage domain.Stage `json:"stage"`
}

// startDiscovery handles POST /api/v1/discoveries. The run executes in the
// background; progress is polled via GET.
func (s *Server) startDiscovery(w http.ResponseWriter, r *http.Request) {
	var req startDiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Pitch == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "pitch is required")
		return
	}
	if req.Target < 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "target must not be negative")
		return
	}

	runID := uuid.NewString()
	params := RunParams{
		RunID:  runID,
		Pitch:  req.Pitch,
		Facets: req.Facets,
		Target: req.Target,
	}

	go func() {
		// Detached from the request: the run outlives the HTTP exchange.
		if _, err := s.collector.Run(context.Background(), params, nil); err != nil {
			s.logger.Error("background run failed",
				zap.String("run_id", runID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, startDiscoveryResponse{
		RunID: runID,
		Stage: domain.StageInitializing,
	})
}

// getDiscovery handles GET /api/v1/discoveries/{runID}.
func (s *Server) getDiscovery(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.checkpoints.Load(r.Context(), runID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, progress.Snapshot())
}

type keywordsResponse struct {
	RunID    string                 `json:"run_id"`
	Stage    domain.Stage           `json:"stage"`
	Keywords []domain.ScoredKeyword `json:"keywords"`
}

// getKeywords handles GET /api/v1/discoveries/{runID}/keywords. Keywords are
// scored on read so the stored checkpoint stays metric-free.
func (s *Server) getKeywords(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.checkpoints.Load(r.Context(), runID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if progress.Stage != domain.StageComplete {
		writeError(w, http.StatusConflict, codeRunNotComplete,
			"run is in stage "+string(progress.Stage))
		return
	}

	scored, err := s.scorer.ScoreKeywords(r.Context(), progress.NewKeywords)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, keywordsResponse{
		RunID:    runID,
		Stage:    progress.Stage,
		Keywords: scored,
	})
}

// resumeDiscovery handles POST /api/v1/discoveries/{runID}/resume.
func (s *Server) resumeDiscovery(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	// Validate the run exists before detaching.
	progress, err := s.checkpoints.Load(r.Context(), runID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if progress.Stage == domain.StageComplete {
		writeJSON(w, http.StatusOK, progress.Snapshot())
		return
	}

	go func() {
		if _, err := s.collector.Resume(context.Background(), runID, nil); err != nil {
			s.logger.Error("background resume failed",
				zap.String("run_id", runID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, startDiscoveryResponse{
		RunID: runID,
		Stage: progress.Stage,
	})
}

type corpusMatch struct {
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

type corpusSimilarResponse struct {
	Query   string        `json:"query"`
	Matches []corpusMatch `json:"matches"`
}

// corpusSimilar handles GET /api/v1/corpus/similar?q=...&top_k=N.
func (s *Server) corpusSimilar(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "q is required")
		return
	}

	topK := 10
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must be a positive integer")
			return
		}
		topK = n
	}

	matches, err := s.corpus.FindSimilar(r.Context(), q, topK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out := make([]corpusMatch, len(matches))
	for i, m := range matches {
		out[i] = corpusMatch{Text: m.Record.Text, Similarity: m.Similarity}
	}
	writeJSON(w, http.StatusOK, corpusSimilarResponse{Query: q, Matches: out})
}

type corpusCheckResponse struct {
	Query  string `json:"query"`
	Exists bool   `json:"exists"`
	Fuzzy  bool   `json:"fuzzy"`
}

// corpusCheck handles GET /api/v1/corpus/check?q=...&fuzzy=true. The exact
// mode is a normalized lookup; fuzzy also counts near-duplicates above the
// configured similarity cutoff.
func (s *Server) corpusCheck(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "q is required")
		return
	}
	fuzzy := r.URL.Query().Get("fuzzy") == "true"

	exists, err := s.corpus.Exists(r.Context(), q, s.fuzzyThreshold, !fuzzy)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, corpusCheckResponse{Query: q, Exists: exists, Fuzzy: fuzzy})
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":     report.Status,
		"checks":     report.Checks,
		"index_size": report.IndexSize,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
