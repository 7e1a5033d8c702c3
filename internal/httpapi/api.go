package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"permaudit.io/internal/analytics"
	"permaudit.io/internal/auth"
	"permaudit.io/internal/obs"
	"permaudit.io/internal/runner"
	"permaudit.io/internal/stream"
)

const serviceName = "permaudit-api"

// ReadyProbe checks a dependency before the service reports ready.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Auditor starts runs and reports their progress.
type Auditor interface {
	Start(ctx context.Context, req runner.Request) (string, error)
	Status(orgID string) (runner.Status, bool)
	LastScannedAt(ctx context.Context, orgID string) (time.Time, bool, error)
}

// Querier forwards natural-language questions to the analytics backend.
type Querier interface {
	Query(ctx context.Context, req analytics.QueryRequest) (analytics.QueryResponse, error)
}

type Options struct {
	Version        string
	RatePerSecond  float64
	Burst          int
	MaxBodyBytes   int64
	AllowedOrigins []string
}

type Deps struct {
	Auditor Auditor
	Querier Querier
	Auth    *auth.Authenticator
	Ready   ReadyProbe
	// Events carries run progress for the SSE endpoint; nil disables it.
	Events *stream.Hub[runner.Status]
	Logger *zap.Logger
}

// API is the HTTP layer.
type API struct {
	router  *mux.Router
	auditor Auditor
	querier Querier
	auth    *auth.Authenticator
	ready   ReadyProbe
	events  *stream.Hub[runner.Status]
	log     *zap.Logger
	opts    Options
}

func New(d Deps, opts Options) *API {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		router:  mux.NewRouter(),
		auditor: d.Auditor,
		querier: d.Querier,
		auth:    d.Auth,
		ready:   d.Ready,
		events:  d.Events,
		log:     obs.OrNop(d.Logger),
		opts:    opts,
	}

	a.router.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// Full paths on the root router: routes on a prefixed subrouter would
	// reset each other's method mismatch and turn 405s into 404s.
	a.router.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/audits", a.StartAudit).Methods(http.MethodPost)
	a.router.HandleFunc("/v1/audits/status", a.AuditStatus).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/audits/last-scan", a.LastScan).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/audits/events", a.AuditEvents).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/query", a.Query).Methods(http.MethodPost)

	a.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	a.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return a
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.opts.Burst, a.opts.RatePerSecond)
	h = CORS(h, a.opts.AllowedOrigins)
	h = SecurityHeaders(h)
	h = Logging(h, a.log)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
		"auth":    a.auth.Enabled(),
	})
}

// --- helpers ---

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg, RequestID: w.Header().Get(RequestIDHeader)})
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
