package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/query"
)

func (s *Server) queryNegotiations(w http.ResponseWriter, r *http.Request) {
	var spec query.Spec
	if err := decodeBody(r, &spec); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	list, err := s.negotiationSvc.Query(r.Context(), spec)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if list == nil {
		list = []*negotiation.Negotiation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"negotiations": list})
}

func (s *Server) getNegotiation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "negotiationId")
	n, err := s.negotiationSvc.Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *Server) getNegotiationState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "negotiationId")
	state, err := s.negotiationSvc.GetState(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"state": state.String(),
		"code":  state.Code(),
	})
}

func (s *Server) deleteNegotiation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "negotiationId")
	if err := s.negotiationSvc.Delete(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) queryAgreements(w http.ResponseWriter, r *http.Request) {
	var spec query.Spec
	if err := decodeBody(r, &spec); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	list, err := s.negotiationSvc.QueryAgreements(r.Context(), spec)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if list == nil {
		list = []*negotiation.Agreement{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"agreements": list})
}

func (s *Server) getAgreement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agreementId")
	a, err := s.negotiationSvc.GetAgreement(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondStoreError maps store outcomes onto HTTP statuses. Lease and
// agreement conflicts are both 409: the caller may retry the former but
// not the latter, which the error code distinguishes.
func respondStoreError(w http.ResponseWriter, err error) {
	var consistency *negotiation.ConsistencyError
	switch {
	case errors.Is(err, query.ErrInvalidQuery):
		respondError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error())
	case errors.Is(err, negotiation.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, negotiation.ErrConflict):
		respondError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, negotiation.ErrAlreadyLeased):
		respondError(w, http.StatusConflict, "ALREADY_LEASED", err.Error())
	case errors.As(err, &consistency):
		respondError(w, http.StatusInternalServerError, "INCONSISTENT_STATE", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
