package http

import (
	"net/http"

	"finsight/internal/core"
	"finsight/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	txs, err := s.deps.Finance.ListTransactions(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	out := make([]core.TransactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, core.ViewOfTransaction(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if s.badRequest(w, r, log.OpCreate, decodeJSON(w, r, &req)) {
		return
	}
	tx, err := s.deps.Finance.CreateTransaction(r.Context(), uid, req.input())
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, core.ViewOfTransaction(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Finance.DeleteTransaction(r.Context(), uid, id); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	cats, err := s.deps.Finance.ListCategories(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	out := make([]core.CategoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, core.ViewOfCategory(c))
	}
	writeJSON(w, http.StatusOK, out)
}
