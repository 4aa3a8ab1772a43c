package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/engine"
	"github.com/elys-network/votesnap/internal/logger"
	"github.com/elys-network/votesnap/internal/metrics"
	"github.com/elys-network/votesnap/internal/state"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var webLogger = logger.GetForComponent("web_server")

// Engine is the read side of the engine served over HTTP.
type Engine interface {
	Status() engine.Status
	Votes() []types.RankedPool
	TopVotes() []types.RankedPool
	PrepareVote() types.PreparedVote
	LastSubmission() (types.Submission, bool)
	PoolWeight(pool common.Address) types.PoolWeight
	VotesByAccount(account common.Address) types.VotesData
	PositionsOf(account common.Address) (types.Positions, error)
	AllowlistEntry(token common.Address) types.AllowlistEntry
	Wrappers() []common.Address
	ActiveTokens(wrapper common.Address) ([]common.Address, error)
	StoredAmount(token common.Address) (sdkmath.Int, error)
	Parameters() types.ProtocolParameters
	LatestTick() (types.TickSnapshot, bool)
}

// History is the persisted tick history. It is nil when the database is disabled.
type History interface {
	Ping(ctx context.Context) error
	RecentTicks(limit int) ([]types.TickSnapshot, error)
	DistributionTotals() ([]state.TokenTotals, error)
}

// WebServer serves the engine's views as JSON
type WebServer struct {
	router  *mux.Router
	port    string
	engine  Engine
	history History
	started time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, e Engine, history History) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		engine:  e,
		history: history,
		started: time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/status", ws.handleStatus).Methods("GET")
	api.HandleFunc("/votes", ws.handleVotes).Methods("GET")
	api.HandleFunc("/top-pools", ws.handleTopPools).Methods("GET")
	api.HandleFunc("/prepared-vote", ws.handlePreparedVote).Methods("GET")
	api.HandleFunc("/submission", ws.handleLastSubmission).Methods("GET")
	api.HandleFunc("/pools/{pool}", ws.handlePoolWeight).Methods("GET")
	api.HandleFunc("/positions/{account}", ws.handlePositions).Methods("GET")
	api.HandleFunc("/accounts/{account}/votes", ws.handleAccountVotes).Methods("GET")
	api.HandleFunc("/tokens", ws.handleWrappers).Methods("GET")
	api.HandleFunc("/tokens/{wrapper}", ws.handleActiveTokens).Methods("GET")
	api.HandleFunc("/allowlist/{token}", ws.handleAllowlistEntry).Methods("GET")
	api.HandleFunc("/stored/{token}", ws.handleStoredAmount).Methods("GET")
	api.HandleFunc("/parameters", ws.handleParameters).Methods("GET")
	api.HandleFunc("/ticks", ws.handleTicks).Methods("GET")
	api.HandleFunc("/ticks/latest", ws.handleLatestTick).Methods("GET")
	api.HandleFunc("/distributions/totals", ws.handleDistributionTotals).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
	ws.router.Use(metrics.Middleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Start serves until ctx is cancelled, then shuts the server down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		webLogger.Info().Msg("Shutting down web server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth reports runtime stats, the last tick and the database status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	tickInfo := map[string]interface{}{
		"current_tick":   0,
		"last_tick_time": nil,
		"last_errors":    0,
	}
	if tick, ok := ws.engine.LatestTick(); ok {
		tickInfo = map[string]interface{}{
			"current_tick":   tick.TickNumber,
			"last_tick_time": tick.Timestamp,
			"last_errors":    len(tick.Errors),
		}
		hasErrors = len(tick.Errors) > 0
	}

	dbStatus := "disabled"
	if ws.history != nil {
		dbStatus = "healthy"
		if err := ws.history.Ping(r.Context()); err != nil {
			dbStatus = "unreachable"
			hasErrors = true
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "votesnap",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database":  dbStatus,
			"tick_info": tickInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.Status())
}

func (ws *WebServer) handleVotes(w http.ResponseWriter, r *http.Request) {
	votes := ws.engine.Votes()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"votes": votes, "count": len(votes)})
}

func (ws *WebServer) handleTopPools(w http.ResponseWriter, r *http.Request) {
	status := ws.engine.Status()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools":            ws.engine.TopVotes(),
		"max_pools_length": status.MaxPoolsLength,
		"top_votes_weight": status.TopVotesWeight,
	})
}

func (ws *WebServer) handlePreparedVote(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.PrepareVote())
}

func (ws *WebServer) handleLastSubmission(w http.ResponseWriter, r *http.Request) {
	sub, ok := ws.engine.LastSubmission()
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "No vote submitted yet")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, sub)
}

func (ws *WebServer) handlePoolWeight(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.addressVar(w, r, "pool")
	if !ok {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.PoolWeight(pool))
}

// handlePositions returns the composite positions snapshot of an account
func (ws *WebServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	account, ok := ws.addressVar(w, r, "account")
	if !ok {
		return
	}
	positions, err := ws.engine.PositionsOf(account)
	if err != nil {
		webLogger.Error().Err(err).Str("account", account.Hex()).Msg("Failed to aggregate positions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to aggregate positions")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, positions)
}

func (ws *WebServer) handleAccountVotes(w http.ResponseWriter, r *http.Request) {
	account, ok := ws.addressVar(w, r, "account")
	if !ok {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.VotesByAccount(account))
}

func (ws *WebServer) handleWrappers(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"wrappers": ws.engine.Wrappers()})
}

func (ws *WebServer) handleActiveTokens(w http.ResponseWriter, r *http.Request) {
	wrapper, ok := ws.addressVar(w, r, "wrapper")
	if !ok {
		return
	}
	tokens, err := ws.engine.ActiveTokens(wrapper)
	if errors.Is(err, types.ErrUnknownPool) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Unknown pool wrapper")
		return
	}
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve active tokens")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"wrapper": wrapper, "tokens": tokens, "count": len(tokens)})
}

func (ws *WebServer) handleAllowlistEntry(w http.ResponseWriter, r *http.Request) {
	token, ok := ws.addressVar(w, r, "token")
	if !ok {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.AllowlistEntry(token))
}

func (ws *WebServer) handleStoredAmount(w http.ResponseWriter, r *http.Request) {
	token, ok := ws.addressVar(w, r, "token")
	if !ok {
		return
	}
	amount, err := ws.engine.StoredAmount(token)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Unknown token")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, types.TokenAmount{Token: token, Amount: amount})
}

func (ws *WebServer) handleParameters(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"parameters": ws.engine.Parameters(),
		"timestamp":  time.Now().UTC(),
	})
}

func (ws *WebServer) handleLatestTick(w http.ResponseWriter, r *http.Request) {
	tick, ok := ws.engine.LatestTick()
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "No ticks found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, tick)
}

// handleTicks returns recent persisted ticks
func (ws *WebServer) handleTicks(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Tick history requires the database")
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	ticks, err := ws.history.RecentTicks(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent ticks")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve ticks")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"ticks": ticks, "count": len(ticks), "limit": limit})
}

func (ws *WebServer) handleDistributionTotals(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Distribution history requires the database")
		return
	}
	totals, err := ws.history.DistributionTotals()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get distribution totals")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve distribution totals")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"totals": totals})
}

// addressVar parses a hex address route variable, answering 400 when it is malformed.
func (ws *WebServer) addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := mux.Vars(r)[name]
	if !common.IsHexAddress(raw) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid "+name+" address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
