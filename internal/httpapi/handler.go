package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"lldsync/core-go/internal/db"
	"lldsync/core-go/internal/lld"
	"lldsync/core-go/internal/metrics"
	"lldsync/core-go/internal/sqlcgen"
)

type ruleQueries interface {
	GetDiscoveryRule(ctx context.Context, itemID int64) (sqlcgen.DiscoveryRule, error)
	InsertLLDValue(ctx context.Context, arg sqlcgen.InsertLLDValueParams) (sqlcgen.LLDValue, error)
}

type ruleProcessor interface {
	ProcessDiscoveryRule(ctx context.Context, ruleID int64, payload string, ts time.Time) (lld.Result, error)
}

type Handler struct {
	log     zerolog.Logger
	pool    *db.Pool
	rules   ruleQueries
	engine  ruleProcessor
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewHandler(log zerolog.Logger, pool *db.Pool, engine *lld.Engine, m *metrics.Metrics) *Handler {
	h := &Handler{log: log, pool: pool, metrics: m, now: time.Now}
	if q := pool.Queries(); q != nil {
		h.rules = q
	}
	if engine != nil {
		h.engine = engine
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/discovery/rules/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetRule)
				r.Post("/value", h.handleProcessValue)
				r.Post("/queue", h.handleQueueValue)
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
				if len(route) > 1 {
					route = strings.TrimSuffix(route, "/")
				}
			}
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

type discoveryRule struct {
	ID       int64  `json:"id"`
	HostID   int64  `json:"host_id"`
	Host     string `json:"host"`
	Key      string `json:"key"`
	Status   string `json:"status"`
	Error    string `json:"error"`
	Lifetime string `json:"lifetime"`
	Filter   string `json:"filter"`
}

type discoveryValue struct {
	Value *string `json:"value"`
	Clock *int64  `json:"clock,omitempty"`
	NS    int32   `json:"ns,omitempty"`
}

type queuedValue struct {
	ID       string    `json:"id"`
	RuleID   int64     `json:"rule_id"`
	Status   string    `json:"status"`
	QueuedAt time.Time `json:"queued_at"`
}

func ruleStatus(status int16) string {
	if status == sqlcgen.StatusNotSupported {
		return "not_supported"
	}
	return "active"
}

func toDiscoveryRule(rule sqlcgen.DiscoveryRule) discoveryRule {
	return discoveryRule{
		ID:       rule.ItemID,
		HostID:   rule.HostID,
		Host:     rule.Host,
		Key:      rule.Key,
		Status:   ruleStatus(rule.Status),
		Error:    rule.Error,
		Lifetime: rule.Lifetime,
		Filter:   rule.Filter,
	}
}

func (h *Handler) ensureQueries(w http.ResponseWriter) bool {
	if h.rules == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "rule id must be a positive integer", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

// decodeValue reads a discovery value body. The clock defaults to now.
func (h *Handler) decodeValue(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	var req discoveryValue
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return "", time.Time{}, false
	}
	if req.Value == nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "value is required", nil)
		return "", time.Time{}, false
	}
	if req.NS < 0 || req.NS > 999_999_999 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "ns must be within [0, 999999999]", map[string]any{"ns": req.NS})
		return "", time.Time{}, false
	}
	ts := h.now()
	if req.Clock != nil {
		ts = time.Unix(*req.Clock, int64(req.NS))
	}
	return *req.Value, ts, true
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok || !h.ensureQueries(w) {
		return
	}

	rule, err := h.rules.GetDiscoveryRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "discovery rule not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("rule_id", id).Msg("get discovery rule failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch discovery rule", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, toDiscoveryRule(rule))
}

func (h *Handler) handleProcessValue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	payload, ts, ok := h.decodeValue(w, r)
	if !ok {
		return
	}
	if h.engine == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	res, err := h.engine.ProcessDiscoveryRule(r.Context(), id, payload, ts)
	if err != nil {
		switch {
		case errors.Is(err, lld.ErrInvalidPayload):
			h.writeError(w, http.StatusUnprocessableEntity, "invalid_payload", res.Error, map[string]any{"run_id": res.RunID})
		case errors.Is(err, pgx.ErrNoRows):
			h.writeError(w, http.StatusNotFound, "not_found", "discovery rule not found", map[string]any{"id": id})
		default:
			h.log.Error().Err(err).Int64("rule_id", id).Msg("discovery run failed")
			h.writeError(w, http.StatusInternalServerError, "db_error", "discovery run failed", map[string]any{"run_id": res.RunID})
		}
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleQueueValue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	payload, ts, ok := h.decodeValue(w, r)
	if !ok || !h.ensureQueries(w) {
		return
	}

	if _, err := h.rules.GetDiscoveryRule(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "discovery rule not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("rule_id", id).Msg("get discovery rule failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch discovery rule", nil)
		return
	}

	row, err := h.rules.InsertLLDValue(r.Context(), sqlcgen.InsertLLDValueParams{
		ItemID: id,
		Value:  payload,
		Clock:  ts.Unix(),
		NS:     int32(ts.Nanosecond()),
	})
	if err != nil {
		h.log.Error().Err(err).Int64("rule_id", id).Msg("queue discovery value failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to queue discovery value", nil)
		return
	}

	h.writeJSON(w, http.StatusAccepted, queuedValue{ID: row.ID, RuleID: row.ItemID, Status: row.Status, QueuedAt: row.QueuedAt})
}
