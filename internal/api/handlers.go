package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/tripsync/internal/extract"
	"github.com/JakeFAU/tripsync/internal/trip"
)

type urlRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type analyzeProvidedRequest struct {
	URL       string `json:"url" validate:"omitempty,url"`
	Text      string `json:"text" validate:"required_without=Payload"`
	Payload   string `json:"payload"`
	PageTitle string `json:"page_title"`
}

type consultationRequest struct {
	Customer         trip.Customer `json:"customer"`
	Trip             trip.Trip     `json:"trip"`
	AutomationStatus string        `json:"automation_status" validate:"omitempty,oneof=pending active completed stopped"`
}

type botRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active completed stopped"`
}

type cleanupRequest struct {
	VisitorIDs []string `json:"visitor_ids" validate:"required,min=1,dive,required"`
}

func (s *Server) fetchPage(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !s.decode(w, r, &req) {
		return
	}
	content, err := s.svc.FetchContent(r.Context(), req.URL)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, content)
}

func (s *Server) analyzeURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.svc.FetchAndAnalyze(r.Context(), req.URL)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) analyzeProvided(w http.ResponseWriter, r *http.Request) {
	var req analyzeProvidedRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.svc.AnalyzeProvided(r.Context(), extract.Input{
		Text:      req.Text,
		URL:       req.URL,
		Payload:   req.Payload,
		PageTitle: req.PageTitle,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) getConfirmation(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) patchConfirmation(w http.ResponseWriter, r *http.Request) {
	var patch trip.DocumentPatch
	if !s.decode(w, r, &patch) {
		return
	}
	doc, err := s.svc.UpdateDocument(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) stageConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec := trip.ConsultationRecord{
		VisitorID:        chi.URLParam(r, "visitor_id"),
		Customer:         req.Customer,
		Trip:             req.Trip,
		AutomationStatus: req.AutomationStatus,
	}
	if err := s.svc.StageConsultation(r.Context(), rec); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) syncConsultation(w http.ResponseWriter, r *http.Request) {
	addr, err := s.svc.SyncConsultation(r.Context(), chi.URLParam(r, "visitor_id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, addr)
}

func (s *Server) toggleBot(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if !s.decode(w, r, &req) {
		return
	}
	visitorID := chi.URLParam(r, "visitor_id")
	if err := s.svc.ToggleBot(r.Context(), visitorID, *req.Enabled); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"visitor_id": visitorID, "enabled": *req.Enabled})
}

func (s *Server) setRowStatus(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || row <= 0 {
		s.writeError(w, http.StatusBadRequest, "row must be a positive integer")
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	addr := trip.RowAddress{SheetName: chi.URLParam(r, "sheet"), RowIndex: row}
	if err := s.svc.SetRowStatus(r.Context(), addr, req.Status); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.CleanupStale(r.Context(), req.VisitorIDs)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) getRate(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if len(from) != 3 || len(to) != 3 {
		s.writeError(w, http.StatusBadRequest, "from and to must be ISO 4217 codes")
		return
	}
	rate, err := s.svc.GetRate(r.Context(), from, to)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "rate": rate})
}
