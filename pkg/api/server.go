package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mosaicdocs/mosaic/pkg/fga"
	"github.com/mosaicdocs/mosaic/pkg/identity"
	"github.com/mosaicdocs/mosaic/pkg/observability"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
	"github.com/mosaicdocs/mosaic/pkg/resources"
)

// Server is the HTTP surface over the resource lifecycle managers. Routes
// are keyed by the kind's table name, so /api/v1/documents/... serves the
// document kind.
type Server struct {
	router   *mux.Router
	managers map[string]*resources.Manager
	store    resources.Store
	log      *observability.Logger
	metrics  *observability.Metrics
}

// NewServer creates the API server with one lifecycle manager per registered
// kind.
func NewServer(store resources.Store, authz fga.Client, log *observability.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		managers: make(map[string]*resources.Manager),
		store:    store,
		log:      log,
	}

	for _, kind := range permissions.Kinds() {
		s.managers[kind.Table] = resources.NewManager(kind, store, authz, log)
	}

	s.setupRoutes()
	return s
}

// SetMetrics attaches Prometheus metrics and instruments all routes.
func (s *Server) SetMetrics(m *observability.Metrics) {
	s.metrics = m
	for _, mgr := range s.managers {
		mgr.SetMetrics(m)
	}
	s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(m)))
}

func (s *Server) setupRoutes() {
	s.router.Use(mux.MiddlewareFunc(identity.Middleware))

	s.router.HandleFunc("/healthz", s.health).Methods("GET")

	r := s.router.PathPrefix("/api/v1").Subrouter()
	r.HandleFunc("/{kind}", s.createResource).Methods("POST")
	r.HandleFunc("/{kind}", s.listResources).Methods("GET")
	r.HandleFunc("/{kind}/{id}", s.getResource).Methods("GET")
	r.HandleFunc("/{kind}/{id}", s.deleteResource).Methods("DELETE")
	r.HandleFunc("/{kind}/{id}/move", s.moveResource).Methods("POST")
	r.HandleFunc("/{kind}/{id}/share", s.shareResource).Methods("POST")

	// Group membership.
	r.HandleFunc("/groups/{id}/members", s.addMember).Methods("POST")
	r.HandleFunc("/groups/{id}/members", s.removeMember).Methods("DELETE")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// manager resolves the lifecycle manager for the {kind} path segment, or nil
// when the segment names no registered kind.
func (s *Server) manager(r *http.Request) *resources.Manager {
	return s.managers[mux.Vars(r)["kind"]]
}

func (s *Server) countOp(m *resources.Manager, op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ResourceOperationsTotal.WithLabelValues(m.Kind().Name, op, status).Inc()
}
