package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"fieldops.org/internal/auth"
	"fieldops.org/internal/directory"
	"fieldops.org/internal/obs"
)

// ReadyProbe reports whether the service can serve traffic (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the collaborators and limits the API is wired with.
type Options struct {
	Auth      *auth.Service
	Directory *directory.Service
	Ready     ReadyProbe
	Version   string

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	auth      *auth.Service
	directory *directory.Service
	ready     ReadyProbe
	version   string

	rateLimitPerSecond int
	rateLimitBurst     int
	maxBodyBytes       int64
}

// New wires routes. Business rules live in the services; handlers only
// decode, authorize, delegate, and shape responses.
func New(opts Options) *API {
	a := &API{
		mux:                http.NewServeMux(),
		auth:               opts.Auth,
		directory:          opts.Directory,
		ready:              opts.Ready,
		version:            opts.Version,
		rateLimitPerSecond: opts.RateLimitPerSecond,
		rateLimitBurst:     opts.RateLimitBurst,
		maxBodyBytes:       opts.MaxBodyBytes,
	}
	if a.rateLimitPerSecond <= 0 {
		a.rateLimitPerSecond = 10
	}
	if a.rateLimitBurst <= 0 {
		a.rateLimitBurst = 20
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/force-logout", a.handleForceLogout)
	a.mux.HandleFunc("/v1/auth/force-logout-batch", a.handleForceLogoutBatch)

	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleScoped)
	a.mux.HandleFunc("/v1/clients", a.handleClients)
	a.mux.HandleFunc("/v1/clients/", a.handleClientScoped)
	a.mux.HandleFunc("/v1/products", a.handleProducts)
	a.mux.HandleFunc("/v1/products/", a.handleProductScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateLimitPerSecond, a.rateLimitBurst)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fieldops-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "fieldops-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
