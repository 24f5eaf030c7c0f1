package http

import (
	"log/slog"
	"net/http"

	"depenses/internal/core"
	"depenses/internal/heartbeat"
	"depenses/internal/log"
	"depenses/internal/view"
)

func (s *Server) logExpense(r *http.Request, msg, op string, e core.Expense) {
	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).LogFields(r.Context(), slog.LevelInfo, msg,
		log.NewFields().WithOperation(op).WithExpense(e.ID, e.Label, e.Amount, e.Currency.String()))
}

// GET /api/expenses[?from=&to=]
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	records, err := s.svc.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseList(view.InRange(records, rng)))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, err := ParseRequestBody(w, r)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	n, err := parseCreateExpense(p)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	e, err := s.svc.Create(r.Context(), n)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	s.logExpense(r, "Expense created", log.OpCreate, e)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+e.ID).
		Body(newExpenseJSON(e)).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseJSON(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	p, err := ParseRequestBody(w, r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	patch, err := parsePatchExpense(p)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	e, err := s.svc.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	s.logExpense(r, "Expense updated", log.OpUpdate, e)
	writeJSON(w, http.StatusOK, newExpenseJSON(e))
}

func (s *Server) handleClearBalance(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.ClearBalance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	s.logExpense(r, "Expense balance cleared", log.OpUpdate, e)
	writeJSON(w, http.StatusOK, newExpenseJSON(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).Info("Expense deleted",
		log.FieldOperation, log.OpDelete, log.FieldExpenseID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.svc.Labels(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, http.StatusOK, labels)
}

func (s *Server) handleRenameLabel(w http.ResponseWriter, r *http.Request) {
	p, err := ParseRequestBody(w, r)
	if err != nil {
		writeError(w, r, log.OpRename, err)
		return
	}
	newLabel, err := parseRenameLabel(p)
	if err != nil {
		writeError(w, r, log.OpRename, err)
		return
	}
	label := r.PathValue("label")
	res, err := s.svc.RenameLabel(r.Context(), label, newLabel)
	if err != nil {
		writeError(w, r, log.OpRename, err)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).Info("Label renamed",
		log.FieldLabel, label, "new_label", newLabel, log.FieldAffected, res.Affected)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	res, err := s.svc.DeleteByLabel(r.Context(), label)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).Info("Label deleted",
		log.FieldLabel, label, log.FieldAffected, res.Affected)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, heartbeat.Payload(s.now()))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports 503 while the store cannot be reached.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		writeError(w, r, "ready", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
