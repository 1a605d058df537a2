package api

import (
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// LinkRequest identifies an unordered account pair and, for create and
// privacy updates, the desired privacy mode.
type LinkRequest struct {
	AccountA    uuid.UUID         `json:"account_a"`
	AccountB    uuid.UUID         `json:"account_b"`
	PrivacyMode types.PrivacyMode `json:"privacy_mode,omitempty"`
}

func (req *LinkRequest) validate(requireMode bool) error {
	if req.AccountA == uuid.Nil || req.AccountB == uuid.Nil {
		return apperrors.New(apperrors.ErrCodeValidation, "Both account IDs are required", http.StatusBadRequest)
	}
	if requireMode && !req.PrivacyMode.Valid() {
		return apperrors.NewWithDetail(apperrors.ErrCodeValidation, "Unknown privacy mode", string(req.PrivacyMode), http.StatusBadRequest)
	}
	return nil
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}

	var req LinkRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PrivacyMode == "" {
		req.PrivacyMode = types.PrivacyLinked
	}
	if err := req.validate(true); err != nil {
		s.writeError(w, r, err)
		return
	}

	link, err := s.graph.LinkAccounts(r.Context(), req.AccountA, req.AccountB, req.PrivacyMode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.recordAudit(r, caller, "identity_link.create", "identity_link", link.AccountA.String()+"/"+link.AccountB.String(), nil, nil)
	s.writeJSON(w, http.StatusCreated, link)
}

func (s *Server) handleUpdateLinkPrivacy(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}

	var req LinkRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(true); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.graph.UpdateLinkPrivacy(r.Context(), req.AccountA, req.AccountB, req.PrivacyMode); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.recordAudit(r, caller, "identity_link.update_privacy", "identity_link", req.AccountA.String()+"/"+req.AccountB.String(), nil, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}

	var req LinkRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(false); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.graph.UnlinkAccounts(r.Context(), req.AccountA, req.AccountB); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.recordAudit(r, caller, "identity_link.delete", "identity_link", req.AccountA.String()+"/"+req.AccountB.String(), nil, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetLinkedAccountIDs returns the transitive closure of accounts
// reachable from the given account over closure-visible links.
func (s *Server) handleGetLinkedAccountIDs(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	ids, err := s.graph.GetLinkedAccounts(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"data": ids})
}

func (s *Server) handleGetAccessibleProfiles(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	profiles, err := s.graph.GetAccessibleProfiles(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"data": profiles})
}

func (s *Server) handleGetLinks(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	links, err := s.graph.GetLinks(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"data": links})
}
