package http

import (
	"net/http"

	"depenses/internal/log"
	"depenses/internal/view"
)

// GET /api/view renders the grouped view for the query string and remembers
// the query for later page and accordion changes.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q, err := parseViewQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpView, err)
		return
	}
	id, sess := s.sessions.load(w, r)
	sess.Query = q
	s.render(w, r, id, sess)
}

// POST /api/view/pages moves one day to another page or page size.
func (s *Server) handleViewPages(w http.ResponseWriter, r *http.Request) {
	p, err := ParseRequestBody(w, r)
	if err != nil {
		writeError(w, r, log.OpView, err)
		return
	}
	req, err := parsePages(p)
	if err != nil {
		writeError(w, r, log.OpView, err)
		return
	}

	id, sess := s.sessions.load(w, r)
	pages := sess.View.Pages
	if req.ItemsPerPage != nil {
		pages = pages.SetItemsPerPage(req.Day, *req.ItemsPerPage)
	}
	if req.Page != nil {
		pages = pages.SetPage(req.Day, *req.Page)
	}
	sess.View.Pages = pages
	s.render(w, r, id, sess)
}

// POST /api/view/accordion expands or collapses label groups.
func (s *Server) handleViewAccordion(w http.ResponseWriter, r *http.Request) {
	p, err := ParseRequestBody(w, r)
	if err != nil {
		writeError(w, r, log.OpView, err)
		return
	}
	req, err := parseAccordion(p)
	if err != nil {
		writeError(w, r, log.OpView, err)
		return
	}

	id, sess := s.sessions.load(w, r)
	if req.Toggle != "" {
		sess.View.Accordion = sess.View.Accordion.Toggle(req.Toggle)
	} else {
		sess.View.Accordion.Command = view.ParseAccordionCommand(req.Command)
	}
	s.render(w, r, id, sess)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, id string, sess clientSession) {
	res, next, err := s.svc.ViewSession(r.Context(), sess.Query, sess.View)
	if err != nil {
		writeError(w, r, log.OpView, err)
		return
	}
	sess.View = next
	s.sessions.save(id, sess)
	writeJSON(w, http.StatusOK, newViewJSON(res, sess.Query, next.Accordion))
}
