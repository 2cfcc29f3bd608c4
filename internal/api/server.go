package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fritzwatch/internal/config"
	"fritzwatch/internal/recent"
	"fritzwatch/internal/stats"
	"fritzwatch/internal/storage"
)

type Server struct {
	cfg     *config.Manager
	store   storage.Store
	stats   *stats.Store
	recent  *recent.Buffer
	logger  *slog.Logger
	version string
	started time.Time
}

type statusResponse struct {
	Status  string          `json:"status"`
	Time    string          `json:"time"`
	Version string          `json:"version"`
	Uptime  string          `json:"uptime"`
	Device  string          `json:"device"`
	Driver  string          `json:"storage_driver"`
	Poll    stats.PollStats `json:"poll"`
}

func Start(ctx context.Context, cfg *config.Manager, store storage.Store, statsStore *stats.Store, recentBuf *recent.Buffer, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		store:   store,
		stats:   statsStore,
		recent:  recentBuf,
		logger:  logger,
		version: version,
		started: time.Now().UTC(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/logs", server.handleLogs)
	mux.HandleFunc("/recent", server.handleRecent)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Device:  cfg.Device.Host,
		Driver:  cfg.Storage.Driver,
	}
	if s.stats != nil {
		resp.Poll = s.stats.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogs serves persisted history, newest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}
	records, err := s.store.SelectLogs(r.Context(), offset, limit)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("couldn't select logs", "err", err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   records,
		"count":  len(records),
		"offset": offset,
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.recent == nil {
		writeJSON(w, http.StatusOK, map[string]any{"records": nil, "count": 0})
		return
	}
	limit := queryInt(r, "limit", 0)
	sinceStr := r.URL.Query().Get("since")
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		records := s.recent.Since(ts)
		writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
		return
	}
	records := s.recent.List(limit)
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
