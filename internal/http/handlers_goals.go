package http

import (
	"net/http"

	"finsight/internal/core"
	"finsight/internal/log"
)

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	goals, err := s.deps.Finance.ListGoals(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	out := make([]core.GoalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, core.ViewOfGoal(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req goalRequest
	if s.badRequest(w, r, log.OpCreate, decodeJSON(w, r, &req)) {
		return
	}
	g, err := s.deps.Finance.CreateGoal(r.Context(), uid, req.input())
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, core.ViewOfGoal(g))
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req goalPatchRequest
	if s.badRequest(w, r, log.OpUpdate, decodeJSON(w, r, &req)) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	g, err := s.deps.Finance.UpdateGoal(r.Context(), uid, id, patch)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, core.ViewOfGoal(g))
}

func (s *Server) handleAddFunds(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req fundsRequest
	if s.badRequest(w, r, log.OpUpdate, decodeJSON(w, r, &req)) {
		return
	}
	g, err := s.deps.Finance.AddFunds(r.Context(), uid, id, req.Amount)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, core.ViewOfGoal(g))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Finance.DeleteGoal(r.Context(), uid, id); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
