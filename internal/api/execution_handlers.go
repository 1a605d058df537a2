package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/link-wallet/link-wallet/internal/metrics"
	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
)

// DetermineExecutionPathRequest asks which path a profile should use for a
// meta-transaction.
type DetermineExecutionPathRequest struct {
	ProfileID   uuid.UUID          `json:"profile_id"`
	Transaction TransactionRequest `json:"transaction"`
}

// ExecuteWithDelegationRequest executes a meta-transaction under an existing
// delegation.
type ExecuteWithDelegationRequest struct {
	DelegationID uuid.UUID          `json:"delegation_id"`
	Transaction  TransactionRequest `json:"transaction"`
}

// ExecuteWithDelegationResponse reports the broadcast transaction hash.
type ExecuteWithDelegationResponse struct {
	TxHash string `json:"tx_hash"`
}

func (s *Server) handleDetermineExecutionPath(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.callerAccount(w, r); !ok {
		return
	}

	var req DetermineExecutionPathRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ProfileID == uuid.Nil {
		s.writeError(w, r, apperrors.New(apperrors.ErrCodeValidation, "profile_id is required", http.StatusBadRequest))
		return
	}

	tx, err := req.Transaction.toTransaction()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	decision, err := s.execution.DetermineBestExecutionPath(r.Context(), req.ProfileID, tx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	metrics.PathDecisions.WithLabelValues(string(decision.Path)).Inc()
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleExecuteWithDelegation(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}

	var req ExecuteWithDelegationRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.DelegationID == uuid.Nil {
		s.writeError(w, r, apperrors.New(apperrors.ErrCodeValidation, "delegation_id is required", http.StatusBadRequest))
		return
	}

	tx, err := req.Transaction.toTransaction()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	txHash, err := s.execution.ExecuteWithDelegation(r.Context(), caller, req.DelegationID, tx)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok {
			switch appErr.Code {
			case apperrors.ErrCodePermissionDenied,
				apperrors.ErrCodeValueCapExceeded,
				apperrors.ErrCodeChainNotAllowed:
				metrics.PermissionDenials.WithLabelValues(appErr.Code).Inc()
			}
		}
		metrics.DelegatedExecutions.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}

	metrics.DelegatedExecutions.WithLabelValues("ok").Inc()
	s.writeJSON(w, http.StatusOK, ExecuteWithDelegationResponse{TxHash: txHash})
}
