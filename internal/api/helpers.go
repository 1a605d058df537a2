package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/link-wallet/link-wallet/internal/logger"
	"github.com/link-wallet/link-wallet/internal/middleware"
	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError maps application errors to their HTTP representation. Anything
// that is not an AppError is logged and reported as a generic 500 so internal
// detail never leaks to clients.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		logger.FromContext(r.Context()).Error("unhandled error", "error", err)
		appErr = apperrors.ErrInternalError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	json.NewEncoder(w).Encode(appErr)
}

// decodeJSON decodes a request body, rejecting unknown fields.
func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewWithDetail(
			apperrors.ErrCodeBadRequest,
			"Invalid request body",
			err.Error(),
			http.StatusBadRequest,
		)
	}
	return nil
}

// callerAccount resolves the authenticated caller or writes a 401.
func (s *Server) callerAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountID, ok := middleware.GetCallerAccount(r.Context())
	if !ok {
		s.writeError(w, r, apperrors.ErrUnauthorized)
	}
	return accountID, ok
}

// pathUUID parses a path value as a UUID or writes a 400.
func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		s.writeError(w, r, apperrors.NewWithDetail(
			apperrors.ErrCodeBadRequest,
			"Invalid "+name,
			r.PathValue(name),
			http.StatusBadRequest,
		))
		return uuid.Nil, false
	}
	return id, true
}

// recordAudit writes an audit entry for a state-changing request. Audit
// failures are logged, never surfaced; the mutation already happened.
func (s *Server) recordAudit(r *http.Request, caller uuid.UUID, action, resourceType, resourceID string, txHash, detail *string) {
	if s.audit == nil {
		return
	}

	entry := &types.AuditLog{
		Actor:        caller.String(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		TxHash:       txHash,
		Detail:       detail,
	}
	if ip := middleware.GetClientIP(r.Context()); ip != nil {
		entry.ClientIP = *ip
	}
	if ua := middleware.GetUserAgent(r.Context()); ua != nil {
		entry.UserAgent = *ua
	}

	if err := s.audit.Create(r.Context(), entry); err != nil {
		logger.FromContext(r.Context()).Error("failed to write audit log", "action", action, "resource_id", resourceID, "error", err)
	}
}

// TransactionRequest is the wire form of a meta-transaction.
type TransactionRequest struct {
	To      string `json:"to"`
	Value   string `json:"value,omitempty"`
	Data    string `json:"data,omitempty"`
	ChainID int64  `json:"chain_id"`
}

// toTransaction parses the wire form. Value is a decimal wei string; Data is
// 0x-prefixed hex.
func (req TransactionRequest) toTransaction() (types.Transaction, error) {
	tx := types.Transaction{To: req.To, ChainID: req.ChainID}

	if req.Value != "" {
		value, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			return tx, apperrors.NewWithDetail(
				apperrors.ErrCodeBadRequest,
				"Invalid transaction value",
				req.Value,
				http.StatusBadRequest,
			)
		}
		tx.Value = value
	}

	if req.Data != "" {
		data, err := hexutil.Decode(req.Data)
		if err != nil {
			return tx, apperrors.NewWithDetail(
				apperrors.ErrCodeBadRequest,
				"Invalid transaction data",
				err.Error(),
				http.StatusBadRequest,
			)
		}
		tx.Data = data
	}

	return tx, nil
}
