package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/scrypster/relgraph/internal/intro"
	"github.com/scrypster/relgraph/internal/report"
	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

// maxBatchTargets caps the targets of one batch request.
const maxBatchTargets = 100

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string      `json:"status"`
	Snapshot *intro.Info `json:"snapshot,omitempty"`
}

// PublishResponse is returned by the publish endpoints.
type PublishResponse struct {
	Target  string `json:"target,omitempty"`
	Records int    `json:"records"`
}

// BatchRequest is the body of POST /api/introductions/batch.
type BatchRequest struct {
	Targets         []string `json:"targets"`
	MaxResults      int      `json:"max_results,omitempty"`
	MaxHops         int      `json:"max_hops,omitempty"`
	MinPathStrength *float64 `json:"min_strength,omitempty"`
	Strategies      []string `json:"strategies,omitempty"`
	Seeds           []string `json:"seeds,omitempty"`
	Query           string   `json:"q,omitempty"`
}

// handlers serves the API routes.
type handlers struct {
	svc       *intro.Service
	publisher *report.Publisher
	logger    *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session()
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "no_snapshot"})
		return
	}
	info := sess.Info()
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Snapshot: &info})
}

func (h *handlers) warmIntroductions(w http.ResponseWriter, r *http.Request) {
	opts, err := warmOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query parameters", err)
		return
	}
	res, err := h.svc.FindWarmIntroductions(r.Context(), r.PathValue("target"), opts)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *handlers) warmIntroductionsBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Targets) == 0 || len(req.Targets) > maxBatchTargets {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("targets must hold 1 to %d ids", maxBatchTargets), nil)
		return
	}
	strategies, err := parseStrategies(req.Strategies)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid strategies", err)
		return
	}
	if m := req.MinPathStrength; m != nil && (*m < 0 || *m > 1) {
		respondError(w, http.StatusBadRequest, "min_strength must be in [0,1]", nil)
		return
	}

	items, err := h.svc.FindWarmIntroductionsBatch(r.Context(), req.Targets, intro.WarmOptions{
		MaxResults:      req.MaxResults,
		MaxHops:         req.MaxHops,
		MinPathStrength: req.MinPathStrength,
		Strategies:      strategies,
		Seeds:           req.Seeds,
		Query:           req.Query,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *handlers) paths(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, target := q.Get("source"), q.Get("target")
	if source == "" || target == "" {
		respondError(w, http.StatusBadRequest, "source and target are required", nil)
		return
	}
	opts, err := pathOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	var res *intro.PathResult
	switch mode := q.Get("mode"); mode {
	case "", "introduction":
		res, err = h.svc.FindIntroductionPaths(r.Context(), source, target, opts)
	case "optimal":
		res, err = h.svc.FindOptimalPaths(r.Context(), source, target, opts)
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", mode), nil)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *handlers) connectivity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	summary, err := h.svc.AnalyzeConnectivity(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("entity %q not found", id), nil)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *handlers) insights(w http.ResponseWriter, r *http.Request) {
	topK, err := intParam(r, "top")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query parameters", err)
		return
	}
	ins, err := h.svc.ComputeNetworkInsights(r.Context(), topK)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ins)
}

func (h *handlers) reload(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Reload(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Info())
}

func (h *handlers) publishIntroductions(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("target")
	opts, err := warmOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query parameters", err)
		return
	}
	res, err := h.svc.FindWarmIntroductions(r.Context(), target, opts)
	if err != nil {
		h.fail(w, err)
		return
	}
	n, err := h.publisher.PublishIntroductions(r.Context(), target, res.Introductions)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PublishResponse{Target: target, Records: n})
}

func (h *handlers) publishInsights(w http.ResponseWriter, r *http.Request) {
	ins, err := h.svc.ComputeNetworkInsights(r.Context(), 0)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.publisher.PublishInsights(r.Context(), ins); err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PublishResponse{Records: 1})
}

// fail maps service errors to HTTP status codes.
func (h *handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrSnapshotUnavailable):
		respondError(w, http.StatusServiceUnavailable, "snapshot unavailable", err)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid input", err)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "request timed out", err)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		h.logger.Debug("request cancelled", "error", err)
	default:
		h.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func warmOptions(r *http.Request) (intro.WarmOptions, error) {
	q := r.URL.Query()
	var opts intro.WarmOptions
	var err error
	if opts.MaxResults, err = intParam(r, "max_results"); err != nil {
		return opts, err
	}
	if opts.MaxHops, err = intParam(r, "max_hops"); err != nil {
		return opts, err
	}
	if opts.MaxSeeds, err = intParam(r, "max_seeds"); err != nil {
		return opts, err
	}
	if opts.MinPathStrength, err = floatParam(r, "min_strength"); err != nil {
		return opts, err
	}
	if opts.Strategies, err = parseStrategies(listParam(r, "strategies")); err != nil {
		return opts, err
	}
	opts.Seeds = listParam(r, "seeds")
	opts.Query = q.Get("q")
	return opts, nil
}

func pathOptions(r *http.Request) (intro.PathOptions, error) {
	var opts intro.PathOptions
	var err error
	if opts.MaxHops, err = intParam(r, "max_hops"); err != nil {
		return opts, err
	}
	if opts.MaxPaths, err = intParam(r, "max_paths"); err != nil {
		return opts, err
	}
	if opts.MinPathStrength, err = floatParam(r, "min_strength"); err != nil {
		return opts, err
	}
	if opts.Strategies, err = parseStrategies(listParam(r, "strategies")); err != nil {
		return opts, err
	}
	opts.Query = r.URL.Query().Get("q")
	return opts, nil
}

func parseStrategies(names []string) ([]types.Strategy, error) {
	var out []types.Strategy
	for _, name := range names {
		st, err := types.ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// intParam parses a non-negative integer query parameter. Missing means 0.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, v)
	}
	return n, nil
}

// floatParam parses a query parameter in [0,1]. Missing means nil.
func floatParam(r *http.Request, name string) (*float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return nil, fmt.Errorf("%s must be a number in [0,1], got %q", name, v)
	}
	return &f, nil
}

// listParam reads a comma-separated or repeated query parameter.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Warn("failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: http.StatusText(statusCode)}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, statusCode, resp)
}
