package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"

	"github.com/and161185/matchchat/internal/auth"
	"github.com/and161185/matchchat/internal/convert"
	"github.com/and161185/matchchat/internal/errs"
)

type likeReq struct {
	ToUserID uuid.UUID `json:"toUserId" validate:"required"`
}

type likeResp struct {
	Matched bool `json:"matched"`
}

type blockReq struct {
	BlockedUserID uuid.UUID `json:"blockedUserId" validate:"required"`
}

type unblockResp struct {
	Unblocked bool `json:"unblocked"`
}

type blocksResp struct {
	Blocked []uuid.UUID `json:"blocked"`
}

type changedResp struct {
	Changed bool `json:"changed"`
}

type conversationDeleteResp struct {
	Deleted int64 `json:"deleted"`
}

func (s *Server) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromCtx(r.Context())
	if !ok {
		s.writeError(w, r, errs.ErrUnauthenticated)
	}
	return id, ok
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad %s", errs.ErrValidation, name)
	}
	return id, nil
}

func queryID(r *http.Request, name string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.FromString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s", errs.ErrValidation, name)
	}
	return &id, nil
}

// Like serves POST /api/like and reports whether the like completed a match.
func (s *Server) Like(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req likeReq
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	matched, err := s.matches.Like(r.Context(), me.UserID, me.Tier, req.ToUserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResp{Matched: matched})
}

// Dislike serves POST /api/dislike.
func (s *Server) Dislike(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req likeReq
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.matches.Dislike(r.Context(), me.UserID, req.ToUserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MatchStatus serves GET /api/matchStatus with the caller's like counters.
func (s *Server) MatchStatus(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	st, err := s.matches.Status(r.Context(), me.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToStatusDTO(st))
}

// Matches serves GET /api/matches, the accepted conversation list.
func (s *Server) Matches(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	var includeBlocked bool
	if v := r.URL.Query().Get("includeBlockedByMe"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: bad includeBlockedByMe", errs.ErrValidation))
			return
		}
		includeBlocked = b
	}
	list, err := s.matches.ListAcceptedMatches(r.Context(), me.UserID, includeBlocked)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToMatchDTOs(list))
}

// Block serves POST /api/block.
func (s *Server) Block(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req blockReq
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.blocks.Block(r.Context(), me.UserID, req.BlockedUserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unblock serves DELETE /api/block.
func (s *Server) Unblock(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req blockReq
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	existed, err := s.blocks.Unblock(r.Context(), me.UserID, req.BlockedUserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unblockResp{Unblocked: existed})
}

// Blocks serves GET /api/blocks, the ids the caller has blocked.
func (s *Server) Blocks(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	ids, err := s.blocks.ListBlocked(r.Context(), me.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, blocksResp{Blocked: ids})
}

// History serves GET /api/history?counterpartId=&beforeId=&pageSize=.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	cp, err := queryID(r, "counterpartId")
	if err == nil && cp == nil {
		err = fmt.Errorf("%w: counterpartId required", errs.ErrValidation)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	before, err := queryID(r, "beforeId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var size int
	if v := r.URL.Query().Get("pageSize"); v != "" {
		if size, err = strconv.Atoi(v); err != nil || size < 0 {
			s.writeError(w, r, fmt.Errorf("%w: bad pageSize", errs.ErrValidation))
			return
		}
	}
	page, err := s.messages.History(r.Context(), me.UserID, *cp, before, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToHistoryDTO(page, me.UserID))
}

// DeleteMessage serves PATCH /api/message/{id}/delete, hiding the message for the caller.
func (s *Server) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	changed, err := s.messages.TombstoneMessage(r.Context(), me.UserID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResp{Changed: changed})
}

// ReadMessage serves PATCH /api/message/{id}/read.
func (s *Server) ReadMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	changed, err := s.messages.MarkRead(r.Context(), me.UserID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResp{Changed: changed})
}

// DeleteConversation serves PATCH /api/conversation/{counterpartId}/delete.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := s.identity(w, r)
	if !ok {
		return
	}
	cp, err := pathID(r, "counterpartId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.messages.TombstoneConversation(r.Context(), me.UserID, cp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationDeleteResp{Deleted: n})
}
