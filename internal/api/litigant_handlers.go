package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/causas-crawler/internal/crawler"
	"github.com/JakeFAU/causas-crawler/internal/handler"
	"github.com/JakeFAU/causas-crawler/internal/store"
)

// processLitigant handles POST /v1/litigants/{national_id}/process?role=.
// It always runs in strict mode: a crawl failure answers 502 with the failed
// result, everything else answers 200 with per-case errors in the body.
func (s *Server) processLitigant(w http.ResponseWriter, r *http.Request) {
	nationalID, role, ok := litigantParams(w, r)
	if !ok {
		return
	}
	result, err := s.processor.ProcessLitigant(r.Context(), nationalID, role, handler.Strict())
	if result != nil && result.Outcome != handler.OutcomeFailed {
		s.cache.flush()
	}
	if err != nil {
		if result != nil && result.Outcome == handler.OutcomeFailed {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":  "upstream crawl failed",
				"result": result,
			})
			return
		}
		s.logger.Error("process litigant failed", zap.String("national_id", nationalID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process litigant")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getLitigant handles GET /v1/litigants/{national_id}.
func (s *Server) getLitigant(w http.ResponseWriter, r *http.Request) {
	nationalID := strings.TrimSpace(chi.URLParam(r, "national_id"))
	litigant, err := cached(s.cache, "litigant:"+nationalID, func() (store.LitigantRow, error) {
		return s.reader.Litigant(r.Context(), nationalID)
	})
	if err != nil {
		s.readFailed(w, "litigant", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"litigant": litigant})
}

// listCases handles GET /v1/litigants/{national_id}/cases?role=.
func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	nationalID, role, ok := litigantParams(w, r)
	if !ok {
		return
	}
	cases, err := cached(s.cache, cacheKey("cases", nationalID, role), func() ([]store.CaseRow, error) {
		return s.reader.Cases(r.Context(), nationalID, role)
	})
	if err != nil {
		s.readFailed(w, "cases", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

// listCaseIDs handles GET /v1/litigants/{national_id}/cases/ids?role=.
func (s *Server) listCaseIDs(w http.ResponseWriter, r *http.Request) {
	nationalID, role, ok := litigantParams(w, r)
	if !ok {
		return
	}
	ids, err := cached(s.cache, cacheKey("case_ids", nationalID, role), func() ([]string, error) {
		return s.reader.CaseIDs(r.Context(), nationalID, role)
	})
	if err != nil {
		s.readFailed(w, "case ids", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case_ids": ids})
}

// listMovements handles GET /v1/litigants/{national_id}/movements?role=.
func (s *Server) listMovements(w http.ResponseWriter, r *http.Request) {
	nationalID, role, ok := litigantParams(w, r)
	if !ok {
		return
	}
	movements, err := cached(s.cache, cacheKey("movements", nationalID, role), func() ([]store.MovementRow, error) {
		return s.reader.MovementsByLitigant(r.Context(), nationalID, role)
	})
	if err != nil {
		s.readFailed(w, "movements", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

// listMovementActions handles
// GET /v1/litigants/{national_id}/movements/{movement_id}/actions?role=.
func (s *Server) listMovementActions(w http.ResponseWriter, r *http.Request) {
	nationalID, role, ok := litigantParams(w, r)
	if !ok {
		return
	}
	movementID, err := int64Param(r, "movement_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := cacheKey("movement_actions", nationalID, role) + ":" + strconv.FormatInt(movementID, 10)
	actions, err := cached(s.cache, key, func() ([]store.ActionRow, error) {
		return s.reader.ActionsByMovement(r.Context(), nationalID, role, movementID)
	})
	if err != nil {
		s.readFailed(w, "movement actions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// getCase handles GET /v1/cases/{case_id}.
func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	caseID := strings.TrimSpace(chi.URLParam(r, "case_id"))
	detail, err := cached(s.cache, "case:"+caseID, func() (*store.CaseDetail, error) {
		return s.reader.CaseDetail(r.Context(), caseID)
	})
	if err != nil {
		s.readFailed(w, "case", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": detail})
}

// listIncidentActions handles GET /v1/incidents/{incident_id}/actions.
func (s *Server) listIncidentActions(w http.ResponseWriter, r *http.Request) {
	incidentID, err := int64Param(r, "incident_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actions, err := cached(s.cache, "incident_actions:"+strconv.FormatInt(incidentID, 10), func() ([]store.ActionRow, error) {
		return s.reader.ActionsByIncident(r.Context(), incidentID)
	})
	if err != nil {
		s.readFailed(w, "incident actions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// stats handles GET /v1/stats.
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := cached(s.cache, "stats", func() (store.Stats, error) {
		return s.reader.Stats(r.Context())
	})
	if err != nil {
		s.readFailed(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) readFailed(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("read failed", zap.String("projection", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

func litigantParams(w http.ResponseWriter, r *http.Request) (string, crawler.Role, bool) {
	nationalID := strings.TrimSpace(chi.URLParam(r, "national_id"))
	if nationalID == "" {
		writeError(w, http.StatusBadRequest, "national_id is required")
		return "", "", false
	}
	raw := r.URL.Query().Get("role")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return "", "", false
	}
	role, err := crawler.ParseRole(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return nationalID, role, true
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

func cacheKey(projection, nationalID string, role crawler.Role) string {
	return projection + ":" + role.String() + ":" + nationalID
}
