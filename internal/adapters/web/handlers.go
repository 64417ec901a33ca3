package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

type issueRequest struct {
	OrganiserID string            `json:"organiserId"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type verifyRequest struct {
	Response string          `json:"response"` // base64url signed response blob
	Evidence domain.Evidence `json:"evidence"`
}

type overrideRequest struct {
	ActorID    string `json:"actorId"`
	Reason     string `json:"reason"`
	NewOutcome string `json:"newOutcome"`
}

func (s *Server) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrganiserID == "" {
		http.Error(w, "organiserId required", http.StatusBadRequest)
		return
	}

	ch, err := s.Engine.IssueChallenge(r.Context(), sessionID, req.OrganiserID, req.Metadata)
	if err != nil {
		slog.Error("challenge issue failed", "sessionId", sessionID, "error", err)
		http.Error(w, "could not issue challenge", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Response == "" {
		http.Error(w, "response blob required", http.StatusBadRequest)
		return
	}

	rec, err := s.Engine.VerifyResponse(r.Context(), req.Response, req.Evidence)
	if err != nil {
		slog.Error("verification pipeline error", "error", err)
		http.Error(w, "verification unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	report, err := s.Engine.SessionReport(r.Context(), sessionID)
	if err != nil {
		slog.Error("report build failed", "sessionId", sessionID, "error", err)
		http.Error(w, "report unavailable", http.StatusServiceUnavailable)
		return
	}

	if r.URL.Query().Get("format") == "pdf" {
		records, err := s.Records.ListBySession(r.Context(), sessionID)
		if err != nil {
			slog.Warn("record listing failed for pdf export", "sessionId", sessionID, "error", err)
		}
		data, err := s.PDFExporter.ExportSessionReport(report, records)
		if err != nil {
			http.Error(w, "pdf export failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="session-report.pdf"`)
		w.Write(data)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["recordId"]

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := s.Engine.ApplyOverride(r.Context(), recordID, req.ActorID, req.Reason, domain.Outcome(req.NewOutcome))
	switch {
	case errors.Is(err, domain.ErrOverrideUnauthorised):
		http.Error(w, "override unauthorised", http.StatusForbidden)
		return
	case errors.Is(err, domain.ErrOverrideNotAllowed):
		http.Error(w, "override not allowed for this record", http.StatusConflict)
		return
	case errors.Is(err, domain.ErrRecordNotFound):
		http.Error(w, "record not found", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("override failed", "recordId", recordID, "error", err)
		http.Error(w, "override unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encoding failed", "error", err)
	}
}
