package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/state"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes read-only vault status over HTTP.
type WebServer struct {
	router *mux.Router
	port   string
	facade vault.Facade
}

// NewWebServer creates a new web server instance around the facade.
func NewWebServer(port string, facade vault.Facade) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		facade: facade,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vaults", ws.handleGetVaults).Methods("GET")
	api.HandleFunc("/vaults/{id}", ws.handleGetVault).Methods("GET")
	api.HandleFunc("/vaults/{id}/ranges", ws.handleGetRanges).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"vaults":    len(ws.facade.Vaults()),
	}
	if err := state.TestDBConnection(); err != nil {
		health["status"] = "degraded"
		health["database"] = err.Error()
	} else {
		health["database"] = "ok"
	}
	ws.writeJSONResponse(w, http.StatusOK, health)
}

func (ws *WebServer) handleGetVaults(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.facade.Vaults())
}

func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.vaultID(w, r)
	if !ok {
		return
	}
	v, err := ws.facade.Vault(id)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	balA, balB, err := ws.facade.TotalBalances(id)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"vault":           v,
		"total_balance_a": balA,
		"total_balance_b": balB,
	})
}

func (ws *WebServer) handleGetRanges(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.vaultID(w, r)
	if !ok {
		return
	}
	ranges, err := ws.facade.Ranges(id)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ranges)
}

func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = parsed
	}

	receipts, err := state.LoadRecentReceipts(limit)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipts)
}

func (ws *WebServer) vaultID(w http.ResponseWriter, r *http.Request) (types.VaultID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "vault id must be a non-negative integer")
		return 0, false
	}
	return types.VaultID(id), true
}

func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
