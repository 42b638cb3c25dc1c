package http

import (
	"net/http"

	"finsight/internal/auth"
	"finsight/internal/core"
	"finsight/internal/log"
)

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if s.badRequest(w, r, "signup", decodeJSON(w, r, &req)) {
		return
	}
	sess, err := s.deps.Auth.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		s.writeError(w, r, "signup", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if s.badRequest(w, r, "signin", decodeJSON(w, r, &req)) {
		return
	}
	sess, err := s.deps.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, "signin", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	u, err := s.deps.Auth.Me(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, auth.ViewOfUser(u))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	sum, err := s.deps.Finance.Summary(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleInsights answers {summary, insights} or {error, details}.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	var snap core.Snapshot
	if s.badRequest(w, r, log.OpGenerate, decodeJSON(w, r, &snap)) {
		return
	}
	if snap.Transactions == nil {
		snap.Transactions = []core.TransactionView{}
	}
	if snap.Goals == nil {
		snap.Goals = []core.GoalView{}
	}
	bundle, err := s.deps.Insights.Generate(r.Context(), uid, snap)
	if err != nil {
		if status, _ := errorStatus(err); status == http.StatusServiceUnavailable {
			writeAPIError(w, status, "failed to generate insights", err.Error())
			return
		}
		s.writeError(w, r, log.OpGenerate, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Exporter.Export(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
