// Package api exposes the REST surface: every operation runs through one
// pipeline that authenticates, authorizes, audits and shapes the uniform
// response envelope.
package api

import (
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opcron/opcron/internal/auth"
	"github.com/opcron/opcron/internal/config"
	"github.com/opcron/opcron/internal/jobs"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/perm"
	"github.com/opcron/opcron/internal/scheduler"
	"github.com/opcron/opcron/internal/store"
)

// API wires the request pipeline to its collaborators and owns the route
// table.
type API struct {
	mux          *http.ServeMux
	store        *store.Store
	auth         *auth.Service
	sched        *scheduler.Scheduler
	registry     *jobs.Registry
	hub          *Hub
	loginLimiter *ipRateLimiter
	logger       *zap.Logger
}

func New(
	st *store.Store,
	authService *auth.Service,
	sched *scheduler.Scheduler,
	registry *jobs.Registry,
	hub *Hub,
	cfg config.RateLimit,
	logger *zap.Logger,
) *API {
	a := &API{
		mux:          http.NewServeMux(),
		store:        st,
		auth:         authService,
		sched:        sched,
		registry:     registry,
		hub:          hub,
		loginLimiter: newIPRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:       logger,
	}
	a.registerRoutes()
	return a
}

// Handler returns the root handler for the HTTP server.
func (a *API) Handler() http.Handler {
	return a.mux
}

func (a *API) registerRoutes() {
	a.mux.HandleFunc("/auth/login",
		methods(a.rateLimited(a.run(a.loginEndpoint())), http.MethodPost))
	a.mux.HandleFunc("/auth/logout",
		methods(a.run(a.logoutEndpoint()), http.MethodPost))

	a.mux.HandleFunc("/users", a.methodSwitch(map[string]Endpoint{
		http.MethodGet:  a.userListEndpoint(),
		http.MethodPost: a.userAddEndpoint(),
	}))
	a.mux.HandleFunc("/users/common",
		methods(a.run(a.userCommonEndpoint()), http.MethodGet))
	a.mux.HandleFunc("/users/{id}", a.methodSwitch(map[string]Endpoint{
		http.MethodGet:    a.userEditEndpoint(model.LogUserGet, perm.UserGet),
		http.MethodPut:    a.userEditEndpoint(model.LogUserEdit, perm.UserEdit),
		http.MethodDelete: a.userDeleteEndpoint(),
	}))

	a.mux.HandleFunc("/jobs", a.methodSwitch(map[string]Endpoint{
		http.MethodGet:  a.jobListEndpoint(),
		http.MethodPost: a.jobAddEndpoint(),
	}))
	a.mux.HandleFunc("/jobs/common",
		methods(a.run(a.jobCommonEndpoint()), http.MethodGet))
	a.mux.HandleFunc("/jobs/pause/{id}",
		methods(a.run(a.jobPauseEndpoint()), http.MethodPost))
	a.mux.HandleFunc("/jobs/{id}", a.methodSwitch(map[string]Endpoint{
		http.MethodGet:    a.jobEditEndpoint(model.LogJobGet, perm.JobGet),
		http.MethodPut:    a.jobEditEndpoint(model.LogJobEdit, perm.JobEdit),
		http.MethodDelete: a.jobDeleteEndpoint(),
	}))

	a.mux.HandleFunc("/logs/users",
		methods(a.run(a.userLogEndpoint()), http.MethodGet))
	a.mux.HandleFunc("/logs/jobs",
		methods(a.run(a.jobLogEndpoint()), http.MethodGet))
	a.mux.HandleFunc("/logs/errors",
		methods(a.run(a.errorLogEndpoint()), http.MethodGet))
	a.mux.HandleFunc("/logs/stream",
		methods(a.run(a.streamEndpoint()), http.MethodGet))
}

// methodSwitch dispatches by verb and answers anything else with the 405
// envelope.
func (a *API) methodSwitch(endpoints map[string]Endpoint) http.HandlerFunc {
	handlers := make(map[string]http.HandlerFunc, len(endpoints))
	for method, ep := range endpoints {
		handlers[method] = a.run(ep)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		writeFailure(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

func methods(next http.HandlerFunc, allowed ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, method := range allowed {
			if r.Method == method {
				next(w, r)
				return
			}
		}
		writeFailure(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

// rateLimited throttles a route per client IP.
func (a *API) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.loginLimiter.Allow(remoteIP(r)) {
			writeFailure(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next(w, r)
	}
}

// ipRateLimiter keeps one token bucket per client address.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newIPRateLimiter(requestsPerSecond float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *ipRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}
