package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/calcdeck/internal/calculator"
	"github.com/kalambet/calcdeck/internal/history"
	"github.com/kalambet/calcdeck/internal/metrics"
)

const maxRequestBodySize = 64 << 10 // 64KB

// HistoryStore is the history surface exposed over HTTP and MCP.
type HistoryStore interface {
	Load(calculatorID string) []history.Entry
	Record(calculatorID string, inputs *history.Inputs, result string) history.Entry
	Clear(calculatorID string)
	Partitions() []history.PartitionSummary
	Cap() int
}

type Deps struct {
	Catalog *calculator.Catalog
	History HistoryStore
	Metrics *metrics.Metrics // optional; nil disables /metrics and request counting
	Token   string
	Logger  *slog.Logger
}

// RecordRequest is the body of POST /history/{calculatorID}. The caller
// computes the result; the server only stores it.
type RecordRequest struct {
	Inputs *history.Inputs `json:"inputs"`
	Result string          `json:"result"`
}

// NewHandler returns the loopback HTTP API. Health and metrics are open;
// everything else requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = calculator.Default()
	}

	r := chi.NewRouter()
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/calculators", handleCalculators(deps))
		r.Get("/history", handleHistorySummary(deps))
		r.Get("/history/{calculatorID}", handleLoad(deps))
		r.Post("/history/{calculatorID}", handleRecord(deps))
		r.Delete("/history/{calculatorID}", handleClear(deps))
	})

	return r
}

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if token == "" || !strings.HasPrefix(auth, prefix) ||
				subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="calcdeck"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCalculators(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Catalog.All())
	}
}

func handleHistorySummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"cap":         deps.History.Cap(),
			"calculators": deps.History.Partitions(),
		})
	}
}

func handleLoad(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := calculatorParam(w, r, deps)
		if !ok {
			return
		}
		entries := deps.History.Load(id)
		if limit := parseIntParam(r, "limit", 0, deps.History.Cap()); limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := calculatorParam(w, r, deps)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req RecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Result) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "result is required")
			return
		}

		entry := deps.History.Record(id, req.Inputs, req.Result)
		deps.Logger.Debug("history entry recorded via api", "calculator", id, "id", entry.ID)
		writeJSON(w, http.StatusCreated, entry)
	}
}

func handleClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := calculatorParam(w, r, deps)
		if !ok {
			return
		}
		deps.History.Clear(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// calculatorParam resolves {calculatorID} against the catalog and writes a
// 404 when it is unknown.
func calculatorParam(w http.ResponseWriter, r *http.Request, deps Deps) (string, bool) {
	id := chi.URLParam(r, "calculatorID")
	if _, ok := deps.Catalog.Lookup(id); !ok {
		httpError(w, http.StatusNotFound, "not_found", "unknown calculator %q", id)
		return "", false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
