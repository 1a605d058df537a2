package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/link-wallet/link-wallet/internal/metrics"
	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// CreateDelegationAuthorizationRequest asks for a signing challenge binding a
// linked account to a session wallet on one chain.
type CreateDelegationAuthorizationRequest struct {
	LinkedAccountID uuid.UUID                   `json:"linked_account_id"`
	SessionWallet   string                      `json:"session_wallet"`
	ChainID         int64                       `json:"chain_id"`
	Permissions     types.DelegationPermissions `json:"permissions"`
	ExpiresAt       *time.Time                  `json:"expires_at,omitempty"`
}

// StoreDelegationRequest submits a signed authorization tuple.
type StoreDelegationRequest struct {
	LinkedAccountID uuid.UUID                   `json:"linked_account_id"`
	Authorization   types.SignedAuthorization   `json:"authorization"`
	Permissions     types.DelegationPermissions `json:"permissions"`
	ExpiresAt       *time.Time                  `json:"expires_at,omitempty"`
}

func (s *Server) handleCreateDelegationAuthorization(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}

	var req CreateDelegationAuthorizationRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.LinkedAccountID == uuid.Nil {
		s.writeError(w, r, apperrors.New(apperrors.ErrCodeValidation, "linked_account_id is required", http.StatusBadRequest))
		return
	}

	challenge, err := s.delegations.CreateDelegationAuthorization(
		r.Context(), caller, req.LinkedAccountID, req.SessionWallet, req.ChainID, req.Permissions, req.ExpiresAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	metrics.DelegationsCreated.Inc()
	s.recordAudit(r, caller, "delegation.authorize", "delegation", challenge.DelegationID.String(), nil, nil)
	s.writeJSON(w, http.StatusCreated, challenge)
}

func (s *Server) handleStoreDelegation(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}

	var req StoreDelegationRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.LinkedAccountID == uuid.Nil {
		s.writeError(w, r, apperrors.New(apperrors.ErrCodeValidation, "linked_account_id is required", http.StatusBadRequest))
		return
	}

	d, err := s.delegations.StoreDelegation(
		r.Context(), caller, req.LinkedAccountID, req.Authorization, req.Permissions, req.ExpiresAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	metrics.DelegationsSigned.Inc()
	detail := fmt.Sprintf("session_wallet=%s chain_id=%d", d.DelegatedAddress, d.ChainID)
	s.recordAudit(r, caller, "delegation.store", "delegation", d.ID.String(), nil, &detail)
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDelegation(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}
	delegationID, ok := s.pathUUID(w, r, "delegationID")
	if !ok {
		return
	}

	d, err := s.delegations.GetDelegation(r.Context(), caller, delegationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleActivateDelegation(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}
	delegationID, ok := s.pathUUID(w, r, "delegationID")
	if !ok {
		return
	}

	d, err := s.delegations.ActivateDelegation(r.Context(), caller, delegationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	metrics.DelegationsActivated.Inc()
	s.recordAudit(r, caller, "delegation.activate", "delegation", d.ID.String(), d.TransactionHash, nil)
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRevokeDelegation(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}
	delegationID, ok := s.pathUUID(w, r, "delegationID")
	if !ok {
		return
	}

	if err := s.delegations.RevokeDelegation(r.Context(), caller, delegationID); err != nil {
		s.writeError(w, r, err)
		return
	}

	metrics.DelegationsRevoked.Inc()
	s.recordAudit(r, caller, "delegation.revoke", "delegation", delegationID.String(), nil, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDelegations(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}
	linkedAccountID, ok := s.pathUUID(w, r, "linkedAccountID")
	if !ok {
		return
	}

	delegations, err := s.delegations.ListDelegations(r.Context(), caller, linkedAccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"data": delegations})
}
