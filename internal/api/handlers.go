// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lpsprint/sprint/internal/cache"
	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/model"
	"github.com/lpsprint/sprint/internal/monitor"
	"github.com/lpsprint/sprint/internal/rpcpool"
)

// maxPoolsLimit caps one /pools response regardless of the requested limit.
const maxPoolsLimit = 500

type statusResponse struct {
	Service         string                   `json:"service"`
	Version         string                   `json:"version"`
	UptimeSeconds   int64                    `json:"uptime_seconds"`
	MonitorActive   bool                     `json:"monitor_active"`
	Endpoints       []rpcpool.EndpointStatus `json:"endpoints"`
	PoolsDiscovered int                      `json:"pools_discovered"`
	Cache           cache.Stats              `json:"cache"`
}

type poolsResponse struct {
	Count int          `json:"count"`
	Pools []model.Pool `json:"pools"`
}

type positionsResponse struct {
	Count     int              `json:"count"`
	Positions []model.Position `json:"positions"`
}

type monitorResponse struct {
	Active bool `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleStatus reports the daemon's operational picture in one payload.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.deps.Store.CountPools(r.Context())
	if err != nil {
		log.WithComponentFromContext(r.Context(), "api").Error().
			Str("event", "api.status_failed").
			Err(err).
			Msg("could not count pools")
		respondError(w, http.StatusInternalServerError, "status unavailable")
		return
	}

	respondJSON(w, http.StatusOK, statusResponse{
		Service:         "sprintd",
		Version:         s.deps.Version,
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		MonitorActive:   s.deps.Monitor.DiscoveryActive(),
		Endpoints:       s.deps.Pool.Snapshot(),
		PoolsDiscovered: count,
		Cache:           s.deps.Cache.Stats(),
	})
}

// handlePools lists recently discovered pools, newest first.
func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if limit > maxPoolsLimit {
		limit = maxPoolsLimit
	}

	pools, err := s.deps.Store.RecentPools(r.Context(), limit)
	if err != nil {
		log.WithComponentFromContext(r.Context(), "api").Error().
			Str("event", "api.pools_failed").
			Err(err).
			Msg("could not list pools")
		respondError(w, http.StatusInternalServerError, "pools unavailable")
		return
	}

	respondJSON(w, http.StatusOK, poolsResponse{Count: len(pools), Pools: pools})
}

// handlePositions lists liquidity positions that are not closed yet.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.deps.Store.OpenPositions(r.Context())
	if err != nil {
		log.WithComponentFromContext(r.Context(), "api").Error().
			Str("event", "api.positions_failed").
			Err(err).
			Msg("could not list positions")
		respondError(w, http.StatusInternalServerError, "positions unavailable")
		return
	}

	respondJSON(w, http.StatusOK, positionsResponse{Count: len(positions), Positions: positions})
}

// handleMonitorStart resumes discovery. 409 when it is already running.
func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	if err := s.deps.Monitor.StartDiscovery(); err != nil {
		if errors.Is(err, monitor.ErrAlreadyActive) {
			respondError(w, http.StatusConflict, "discovery already running")
			return
		}
		logger.Error().
			Str("event", "api.monitor_start_failed").
			Err(err).
			Msg("could not start discovery")
		respondError(w, http.StatusInternalServerError, "could not start discovery")
		return
	}

	logger.Info().
		Str("event", "api.monitor_started").
		Str("remote", r.RemoteAddr).
		Msg("discovery started via api")
	respondJSON(w, http.StatusOK, monitorResponse{Active: s.deps.Monitor.DiscoveryActive()})
}

// handleMonitorStop pauses discovery. Stopping an idle monitor succeeds.
func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	if err := s.deps.Monitor.StopDiscovery(); err != nil {
		logger.Error().
			Str("event", "api.monitor_stop_failed").
			Err(err).
			Msg("could not stop discovery")
		respondError(w, http.StatusInternalServerError, "could not stop discovery")
		return
	}

	logger.Info().
		Str("event", "api.monitor_stopped").
		Str("remote", r.RemoteAddr).
		Msg("discovery stopped via api")
	respondJSON(w, http.StatusOK, monitorResponse{Active: s.deps.Monitor.DiscoveryActive()})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
