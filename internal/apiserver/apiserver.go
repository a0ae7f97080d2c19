// Package apiserver exposes the federator's reads and the local wrapper's
// writes over plain net/http + encoding/json, replacing the teacher's gqlgen
// GraphQL surface (dropped — see SPEC_FULL.md's dependency notes) with one
// handler per operation. Grounded on the teacher's cmd/server/main.go
// healthHandler (bare net/http, manual JSON) generalized to the rest of the
// surface the teacher exposed via graph/ resolvers, and on its
// auth.Middleware wrapping pattern for JWT authentication.
package apiserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nucleus/omrs-core/internal/collection"
	"github.com/nucleus/omrs-core/internal/federator"
	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/security"
	"github.com/nucleus/omrs-core/internal/typedefs"
	"github.com/nucleus/omrs-core/internal/wrapper"
)

// Server wires the federator (reads) and wrapper (writes) behind JWT-gated
// HTTP handlers.
type Server struct {
	federator *federator.Federator
	wrapper   *wrapper.Wrapper
	authn     security.Verifier
	log       *slog.Logger
}

func New(f *federator.Federator, w *wrapper.Wrapper, authn security.Verifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{federator: f, wrapper: w, authn: authn, log: log}
}

// Middleware authenticates the request and stores the resulting Principal
// in the request context, mirroring the teacher's auth.Middleware(cfg).
func Middleware(authn *security.JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authn.AuthenticateRequest(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(security.WithPrincipal(r.Context(), principal)))
		})
	}
}

// Routes registers every handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/entities/", s.handleEntity)
	mux.HandleFunc("/relationships/", s.handleRelationship)
	mux.HandleFunc("/entities", s.handleAddEntity)
	mux.HandleFunc("/relationships", s.handleAddRelationship)
	mux.HandleFunc("/types/", s.handleTypeDef)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEntity serves GET /entities/{guid} via the federator (cohort-wide
// read, spec §4.2) and DELETE /entities/{guid} via the wrapper (local-only
// write, spec §4.1).
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	guid := r.URL.Path[len("/entities/"):]
	if guid == "" {
		writeError(w, http.StatusBadRequest, omrserrors.InvalidParameter("guid", "guid must not be empty"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		e, err := s.federator.GetEntityDetail(r.Context(), guid)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	case http.MethodDelete:
		e, err := s.wrapper.DeleteEntity(r.Context(), guid)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	default:
		writeError(w, http.StatusMethodNotAllowed, omrserrors.New(omrserrors.KindFunctionNotSupported, "method %s not supported", r.Method))
	}
}

func (s *Server) handleRelationship(w http.ResponseWriter, r *http.Request) {
	guid := r.URL.Path[len("/relationships/"):]
	if guid == "" {
		writeError(w, http.StatusBadRequest, omrserrors.InvalidParameter("guid", "guid must not be empty"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		rel, err := s.federator.GetRelationship(r.Context(), guid)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, rel)
	case http.MethodDelete:
		rel, err := s.wrapper.DeleteRelationship(r.Context(), guid)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, rel)
	default:
		writeError(w, http.StatusMethodNotAllowed, omrserrors.New(omrserrors.KindFunctionNotSupported, "method %s not supported", r.Method))
	}
}

type addEntityRequest struct {
	Type       instance.TypeDefSummary `json:"type"`
	Properties map[string]any          `json:"properties"`
	CreatedBy  string                  `json:"createdBy"`
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, omrserrors.New(omrserrors.KindFunctionNotSupported, "method %s not supported", r.Method))
		return
	}
	var req addEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, omrserrors.InvalidParameter("body", "invalid JSON: %v", err))
		return
	}
	e, err := s.wrapper.AddEntity(r.Context(), req.Type, req.Properties, req.CreatedBy)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type addRelationshipRequest struct {
	Type       instance.TypeDefSummary `json:"type"`
	EntityOne  instance.EntityProxy    `json:"entityOne"`
	EntityTwo  instance.EntityProxy    `json:"entityTwo"`
	Properties map[string]any          `json:"properties"`
	CreatedBy  string                  `json:"createdBy"`
}

func (s *Server) handleAddRelationship(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, omrserrors.New(omrserrors.KindFunctionNotSupported, "method %s not supported", r.Method))
		return
	}
	var req addRelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, omrserrors.InvalidParameter("body", "invalid JSON: %v", err))
		return
	}
	rel, err := s.wrapper.AddRelationship(r.Context(), req.Type, req.EntityOne, req.EntityTwo, req.Properties, req.CreatedBy)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleTypeDef(w http.ResponseWriter, r *http.Request) {
	guid := r.URL.Path[len("/types/"):]
	if guid == "" {
		var cat typedefs.Category
		if v := r.URL.Query().Get("category"); v != "" {
			cat = typedefs.Category(v)
		}
		tds, err := s.wrapper.ListTypeDefsByCategory(r.Context(), cat)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, tds)
		return
	}
	td, err := s.wrapper.GetTypeDefByGUID(r.Context(), guid)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, td)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps the OMRS error taxonomy (spec §7) onto an HTTP status.
func statusFor(err error) int {
	switch omrserrors.KindOf(err) {
	case omrserrors.KindInvalidParameter, omrserrors.KindInvalidEntity, omrserrors.KindInvalidRelationship, omrserrors.KindInvalidTypeDef:
		return http.StatusBadRequest
	case omrserrors.KindUserNotAuthorized:
		return http.StatusForbidden
	case omrserrors.KindEntityNotKnown, omrserrors.KindRelationshipNotKnown, omrserrors.KindTypeDefNotKnown:
		return http.StatusNotFound
	case omrserrors.KindEntityConflict, omrserrors.KindRelationshipConflict, omrserrors.KindTypeDefConflict:
		return http.StatusConflict
	default:
		if _, ok := err.(*collection.ErrNotFound); ok {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}
}
