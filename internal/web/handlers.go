package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vitos/crypto_backtest/internal/domain"
	"github.com/vitos/crypto_backtest/internal/ledger"
	"github.com/vitos/crypto_backtest/internal/usecase"
	"go.uber.org/zap"
)

type StatusResponse struct {
	Run    *domain.RunSummary `json:"run,omitempty"`
	Ledger ledger.Snapshot    `json:"ledger"`
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Ledger: s.ledger.Snapshot()}
	if s.progress != nil {
		run := s.progress.Progress()
		resp.Run = &run
	}
	s.writeJSON(w, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.Snapshot().OpenPositions)
}

func (s *Server) handleClosedPositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.ClosedPositions())
}

func (s *Server) requireRepo(w http.ResponseWriter) bool {
	if s.runRepo == nil {
		http.Error(w, "Run storage is disabled", http.StatusNotFound)
		return false
	}
	return true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.runRepo.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", zap.Error(err))
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*domain.RunSummary{}
	}
	s.writeJSON(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}

	run, err := s.runRepo.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to get run", zap.String("run_id", r.PathValue("id")), zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, run)
}

func (s *Server) handleRunFills(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}

	fills, err := s.runRepo.ListFills(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list fills", zap.String("run_id", r.PathValue("id")), zap.Error(err))
		http.Error(w, "Failed to list fills", http.StatusInternalServerError)
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}
	s.writeJSON(w, fills)
}

func (s *Server) handleRunMarks(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}

	marks, err := s.runRepo.ListMarks(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list marks", zap.String("run_id", r.PathValue("id")), zap.Error(err))
		http.Error(w, "Failed to list marks", http.StatusInternalServerError)
		return
	}
	if marks == nil {
		marks = []domain.MarkPoint{}
	}
	s.writeJSON(w, marks)
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}

	run, err := s.runRepo.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to get run", zap.String("run_id", r.PathValue("id")), zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, usecase.Analyze(run))
}
