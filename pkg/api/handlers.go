package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mosaicdocs/mosaic/pkg/httputil"
	"github.com/mosaicdocs/mosaic/pkg/resources"
)

// writeDomainError maps the lifecycle manager's sentinel errors onto HTTP
// statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resources.ErrUnauthenticated):
		httputil.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, resources.ErrForbidden):
		httputil.WriteForbidden(w, "access denied")
	case errors.Is(err, resources.ErrParentNotFound), errors.Is(err, resources.ErrValidation):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, resources.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, resources.ErrCycleOrTooDeep):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, resources.ErrAuthzUnavailable):
		httputil.WriteServiceUnavailable(w, "authorization store unavailable")
	default:
		httputil.WriteInternalError(w, err)
	}
}

// createResource handles POST /api/v1/{kind}.
func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	m := s.manager(r)
	if m == nil {
		httputil.WriteNotFoundError(w, "unknown resource kind")
		return
	}

	var req CreateResourceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	res, err := m.Create(r.Context(), req.Title, req.ParentID)
	s.countOp(m, "create", err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, res)
}

// listResources handles GET /api/v1/{kind}. Visibility filtering happens in
// the database's row policies; an unauthenticated caller simply sees nothing.
func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	m := s.manager(r)
	if m == nil {
		httputil.WriteNotFoundError(w, "unknown resource kind")
		return
	}

	rows, err := s.store.List(r.Context(), m.Kind())
	s.countOp(m, "list", err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rows == nil {
		rows = []resources.Resource{}
	}
	httputil.WriteSuccess(w, rows)
}

// getResource handles GET /api/v1/{kind}/{id}.
func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	m := s.manager(r)
	if m == nil {
		httputil.WriteNotFoundError(w, "unknown resource kind")
		return
	}

	res, err := s.store.Get(r.Context(), m.Kind(), mux.Vars(r)["id"])
	s.countOp(m, "get", err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// moveResource handles POST /api/v1/{kind}/{id}/move.
func (s *Server) moveResource(w http.ResponseWriter, r *http.Request) {
	m := s.manager(r)
	if m == nil {
		httputil.WriteNotFoundError(w, "unknown resource kind")
		return
	}

	var req MoveResourceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := m.Move(r.Context(), mux.Vars(r)["id"], req.ParentID)
	s.countOp(m, "move", err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// deleteResource handles DELETE /api/v1/{kind}/{id}.
func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	m := s.manager(r)
	if m == nil {
		httputil.WriteNotFoundError(w, "unknown resource kind")
		return
	}

	err := m.Delete(r.Context(), mux.Vars(r)["id"])
	s.countOp(m, "delete", err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// shareResource handles POST /api/v1/{kind}/{id}/share.
func (s *Server) shareResource(w http.ResponseWriter, r *http.Request) {
	m := s.manager(r)
	if m == nil {
		httputil.WriteNotFoundError(w, "unknown resource kind")
		return
	}

	var req ShareResourceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := m.Share(r.Context(), mux.Vars(r)["id"], req.UserID, req.Relation)
	s.countOp(m, "share", err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// addMember handles POST /api/v1/groups/{id}/members.
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	s.writeMembership(w, r, false)
}

// removeMember handles DELETE /api/v1/groups/{id}/members.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	s.writeMembership(w, r, true)
}

func (s *Server) writeMembership(w http.ResponseWriter, r *http.Request, remove bool) {
	m := s.managers["groups"]

	var req MemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	groupID := mux.Vars(r)["id"]
	var err error
	if remove {
		err = m.RemoveMember(r.Context(), groupID, req.MemberID, !req.IsGroup)
		s.countOp(m, "remove_member", err)
	} else {
		err = m.AddMember(r.Context(), groupID, req.MemberID, !req.IsGroup)
		s.countOp(m, "add_member", err)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
