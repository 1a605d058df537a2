package api

import (
	"net/http"

	"github.com/link-wallet/link-wallet/internal/app"
)

// handleAuthenticateAccount upserts an account from an authentication event
// and returns its profile, provisioning one on first sight.
func (s *Server) handleAuthenticateAccount(w http.ResponseWriter, r *http.Request) {
	var req app.AuthenticateAccountRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.accounts.AuthenticateAccount(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}
	profileID, ok := s.pathUUID(w, r, "profileID")
	if !ok {
		return
	}

	profile, err := s.accounts.GetProfile(r.Context(), caller, profileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleListLinkedAccounts(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}
	profileID, ok := s.pathUUID(w, r, "profileID")
	if !ok {
		return
	}

	linked, err := s.accounts.ListLinkedAccounts(r.Context(), caller, profileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"data": linked})
}

func (s *Server) handleRegisterLinkedAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}
	profileID, ok := s.pathUUID(w, r, "profileID")
	if !ok {
		return
	}

	var req app.RegisterLinkedAccountRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ProfileID = profileID

	la, err := s.accounts.RegisterLinkedAccount(r.Context(), caller, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.recordAudit(r, caller, "linked_account.register", "linked_account", la.ID.String(), nil, nil)
	s.writeJSON(w, http.StatusCreated, la)
}

func (s *Server) handleDeactivateLinkedAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerAccount(w, r)
	if !ok {
		return
	}
	linkedAccountID, ok := s.pathUUID(w, r, "linkedAccountID")
	if !ok {
		return
	}

	if err := s.accounts.DeactivateLinkedAccount(r.Context(), caller, linkedAccountID); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.recordAudit(r, caller, "linked_account.deactivate", "linked_account", linkedAccountID.String(), nil, nil)
	w.WriteHeader(http.StatusNoContent)
}
