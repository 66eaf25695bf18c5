// Package api serves persisted sweep results over a read-only HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"episweep/domain/core"
	"episweep/domain/series"
	"episweep/domain/sweep"
	"episweep/internal"
	"episweep/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CurveSource computes final-infected curves from persisted cells.
type CurveSource interface {
	FinalInfectedCurve(ctx context.Context, arm string, adoptionPct int, tenTimesR []int, seeds []int64, population float64) (*series.Curve, error)
}

// Server holds the router and the stores it reads from. Grid supplies the
// default seeds, R range and population for curve queries.
type Server struct {
	router *chi.Mux
	store  ports.OutputStore
	curves CurveSource
	grid   sweep.GridSpec
	ledger ports.SweepLedgerReader
	logger *internal.Logger
}

// CellResponse describes one cell's persisted state.
type CellResponse struct {
	Key      string              `json:"key"`
	Point    sweep.GridPoint     `json:"point"`
	Complete bool                `json:"complete"`
	Arrays   []string            `json:"arrays,omitempty"`
	Manifest *sweep.CellManifest `json:"manifest,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NewServer wires the routes.
func NewServer(store ports.OutputStore, curves CurveSource, grid sweep.GridSpec, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		curves: curves,
		grid:   grid,
		logger: logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/cells", s.handleListCells)
	s.router.Get("/cells/{key}", s.handleGetCell)
	s.router.Get("/curves/final-infected", s.handleFinalInfected)
	s.router.Get("/sweeps/{id}/cells", s.handleSweepCells)
}

// SetLedger enables /sweeps/{id}/cells.
func (s *Server) SetLedger(ledger ports.SweepLedgerReader) {
	s.ledger = ledger
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[API] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("[API] %s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "grid": s.grid.Name})
}

func (s *Server) handleListCells(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.CompleteKeys(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cells": keys})
}

func (s *Server) handleGetCell(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	point, err := sweep.ParseKey(key)
	if err != nil {
		s.writeError(w, err)
		return
	}

	complete, err := s.store.IsComplete(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := CellResponse{Key: key, Point: point, Complete: complete}
	if complete {
		if resp.Manifest, err = s.store.Manifest(r.Context(), key); err != nil {
			s.writeError(w, err)
			return
		}
		if resp.Arrays, err = s.store.ListArrays(r.Context(), key); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSweepCells serves GET /sweeps/{id}/cells?status= from the ledger.
func (s *Server) handleSweepCells(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no sweep ledger configured"})
		return
	}
	sweepID := core.ID(chi.URLParam(r, "id"))

	var (
		records []sweep.CellRecord
		err     error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, perr := sweep.ParseCellStatus(raw)
		if perr != nil {
			s.writeError(w, perr)
			return
		}
		records, err = s.ledger.ListCellsByStatus(r.Context(), sweepID, status)
	} else {
		records, err = s.ledger.ListCells(r.Context(), sweepID)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []sweep.CellRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sweep_id": sweepID, "cells": records})
}

// handleFinalInfected serves GET /curves/final-infected?arm=&adoption=&r_from=&r_to=&seeds=
// where r_from and r_to are ten-times-R bounds and seeds is comma separated.
func (s *Server) handleFinalInfected(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	arm := q.Get("arm")
	if arm == "" {
		s.writeError(w, core.NewValidationError("arm", "is required"))
		return
	}
	adoption, err := intParam(q.Get("adoption"), "adoption", -1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if adoption < 0 {
		s.writeError(w, core.NewValidationError("adoption", "is required"))
		return
	}

	rRange := s.grid.TenTimesR
	if rRange.From, err = intParam(q.Get("r_from"), "r_from", rRange.From); err != nil {
		s.writeError(w, err)
		return
	}
	if rRange.To, err = intParam(q.Get("r_to"), "r_to", rRange.To); err != nil {
		s.writeError(w, err)
		return
	}
	tenTimesR := rRange.Values()
	if len(tenTimesR) == 0 {
		s.writeError(w, core.NewValidationError("r_from", "range is empty"))
		return
	}

	seeds := s.grid.Seeds
	if raw := q.Get("seeds"); raw != "" {
		seeds = nil
		for _, part := range strings.Split(raw, ",") {
			seed, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				s.writeError(w, core.NewValidationError("seeds", "must be comma separated integers"))
				return
			}
			seeds = append(seeds, seed)
		}
	}

	curve, err := s.curves.FinalInfectedCurve(r.Context(), arm, adoption, tenTimesR, seeds, float64(s.grid.Population))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

func intParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.NewValidationError(name, "must be an integer")
	}
	return v, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrShapeMismatch):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("[API] request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: core.ErrorKind(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
