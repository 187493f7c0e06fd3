// Package httpserver exposes the match, block and message operations over REST
// and mounts the websocket transport.
package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/matchchat/internal/auth"
	"github.com/and161185/matchchat/internal/service"
)

// Verifier authenticates bearer tokens.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// Server holds REST handlers.
type Server struct {
	matches  service.MatchService
	blocks   service.BlockService
	messages service.MessageService
	verifier Verifier
	log      *zap.Logger
}

// New constructs Server.
func New(matches service.MatchService, blocks service.BlockService, messages service.MessageService, verifier Verifier, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{matches: matches, blocks: blocks, messages: messages, verifier: verifier, log: log}
}

// Router builds the route table. ws, when non-nil, is mounted at /ws and
// authenticates its own handshake.
func (s *Server) Router(ws http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(Recover(s.log), Logging(s.log))

	if ws != nil {
		r.Handle("/ws", ws).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.Authenticate)

	api.HandleFunc("/like", s.Like).Methods(http.MethodPost)
	api.HandleFunc("/dislike", s.Dislike).Methods(http.MethodPost)
	api.HandleFunc("/matchStatus", s.MatchStatus).Methods(http.MethodGet)
	api.HandleFunc("/matches", s.Matches).Methods(http.MethodGet)

	api.HandleFunc("/block", s.Block).Methods(http.MethodPost)
	api.HandleFunc("/block", s.Unblock).Methods(http.MethodDelete)
	api.HandleFunc("/blocks", s.Blocks).Methods(http.MethodGet)

	api.HandleFunc("/history", s.History).Methods(http.MethodGet)
	api.HandleFunc("/message/{id}/delete", s.DeleteMessage).Methods(http.MethodPatch)
	api.HandleFunc("/message/{id}/read", s.ReadMessage).Methods(http.MethodPatch)
	api.HandleFunc("/conversation/{counterpartId}/delete", s.DeleteConversation).Methods(http.MethodPatch)

	return r
}
