package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/store"
	"github.com/soyeahso/chatrelay/internal/stream"
)

// Error bodies returned by the chat routes.
const (
	errMissingParams  = "Missing thread_id or message"
	errUnknownSession = "unknown session"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /start_chat", s.handleStartChat)
	mux.HandleFunc("POST /send_message", s.handleSendMessage)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /sessions/{id}/document", s.handleSessionDocument)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
		return
	}
	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

type startChatRequest struct {
	ThreadID string `json:"thread_id"`
}

type startChatResponse struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	var req startChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.runner.BeginSession(r.Context(), req.ThreadID)
	switch {
	case errors.Is(err, domain.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error().Err(err).Str("sessionId", req.ThreadID).Msg("begin session failed")
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}
	writeJSON(w, http.StatusOK, startChatResponse{ThreadID: id})
}

type sendMessageRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// handleSendMessage streams the model's reply as plain text, flushing after
// every fragment. Once the body has started, a failure can only be reported
// in-band, as a trailing "[error]" line.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil || req.ThreadID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, errMissingParams)
		return
	}

	rc := http.NewResponseController(w)
	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
	}

	forward := func(ev llm.StreamEvent) {
		begin()
		switch ev.Type {
		case llm.EventDelta:
			io.WriteString(w, ev.Content)
		case llm.EventError:
			io.WriteString(w, "\n[error] "+ev.Error)
		default:
			return
		}
		if err := rc.Flush(); err != nil {
			s.log.Debug().Err(err).Msg("flush failed")
		}
	}

	res, err := s.runner.SubmitMessage(r.Context(), req.ThreadID, req.Message, forward)
	if err != nil && !started {
		switch {
		case errors.Is(err, domain.ErrInvalidSession):
			writeError(w, http.StatusNotFound, errUnknownSession)
		case errors.Is(err, domain.ErrTurnOrder):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.log.Error().Err(err).Str("sessionId", req.ThreadID).Msg("send message failed")
			writeError(w, http.StatusInternalServerError, "could not send message")
		}
		return
	}
	begin()
	if err != nil {
		s.log.Warn().Err(err).Str("sessionId", req.ThreadID).Msg("reply ended with error")
		return
	}
	s.log.Debug().
		Str("sessionId", res.SessionID).
		Int("length", len(res.Response)).
		Dur("duration", res.Duration).
		Msg("reply streamed")
}

// SessionInfo is one entry of GET /sessions.
type SessionInfo struct {
	SessionID string     `json:"sessionId"`
	Live      bool       `json:"live"`
	Persisted bool       `json:"persisted"`
	Turns     int        `json:"turns"`
	UpdatedAt time.Time  `json:"updatedAt,omitzero"`
	NotifyAt  *time.Time `json:"notifyAt,omitempty"`
}

// SessionDetail is the body of GET /sessions/{id}.
type SessionDetail struct {
	SessionID string        `json:"sessionId"`
	Live      bool          `json:"live"`
	Turns     []domain.Turn `json:"turns"`
	NotifyAt  *time.Time    `json:"notifyAt,omitempty"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	byID := make(map[string]*SessionInfo)

	if s.store != nil {
		summaries, err := s.store.List(r.Context())
		if err != nil {
			s.log.Error().Err(err).Msg("listing transcripts failed")
			writeError(w, http.StatusInternalServerError, "could not list sessions")
			return
		}
		for _, sum := range summaries {
			byID[sum.SessionID] = &SessionInfo{
				SessionID: sum.SessionID,
				Persisted: true,
				Turns:     sum.Turns,
				UpdatedAt: sum.UpdatedAt,
			}
		}
	}

	for _, id := range s.sessions.List() {
		turns, err := s.sessions.Snapshot(id)
		if err != nil {
			continue
		}
		info, ok := byID[id]
		if !ok {
			info = &SessionInfo{SessionID: id}
			byID[id] = info
		}
		info.Live = true
		info.Turns = len(turns)
		if n := len(turns); n > 0 {
			info.UpdatedAt = turns[n-1].Timestamp
		}
	}

	out := make([]SessionInfo, 0, len(byID))
	for id, info := range byID {
		info.NotifyAt = s.notifyAt(id)
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns, live, ok := s.lookupTurns(w, r, id)
	if !ok {
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, SessionDetail{
		SessionID: id,
		Live:      live,
		Turns:     turns,
		NotifyAt:  s.notifyAt(id),
	})
}

// handleSessionDocument renders the session's current transcript on demand.
func (s *Server) handleSessionDocument(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		writeError(w, http.StatusServiceUnavailable, "no renderer configured")
		return
	}
	id := r.PathValue("id")
	turns, _, ok := s.lookupTurns(w, r, id)
	if !ok {
		return
	}

	art, err := s.renderer.Render(id, turns)
	if err != nil {
		s.log.Error().Err(err).Str("sessionId", id).Msg("render failed")
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+"."+art.Extension+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(art.Data)
}

// lookupTurns prefers the live log and falls back to the durable store. It
// writes the error response itself and reports ok=false when it did.
func (s *Server) lookupTurns(w http.ResponseWriter, r *http.Request, id string) (turns []domain.Turn, live bool, ok bool) {
	if !domain.ValidSessionID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false, false
	}
	if snap, err := s.sessions.Snapshot(id); err == nil {
		return snap, true, true
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, errUnknownSession)
		return nil, false, false
	}
	t, err := s.store.Load(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, errUnknownSession)
		return nil, false, false
	case err != nil:
		s.log.Error().Err(err).Str("sessionId", id).Msg("loading transcript failed")
		writeError(w, http.StatusInternalServerError, "could not load session")
		return nil, false, false
	}
	return t.Turns, false, true
}

func (s *Server) notifyAt(id string) *time.Time {
	if s.scheduler == nil {
		return nil
	}
	p, ok := s.scheduler.Pending(id)
	if !ok {
		return nil
	}
	at := p.FireAt
	return &at
}

// handleWebSocket upgrades the connection and runs the frame loop. Rounds on
// one connection run one at a time in arrival order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	client := NewClient(conn, s.log)
	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	ctx := r.Context()
	for {
		f, err := client.ReadFrame()
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.sendFrame(client, NewErrorFrame("", "", CodeProtocol, "malformed frame"))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("websocket read failed")
			}
			return
		}

		switch f.Type {
		case FrameStart:
			id, err := s.runner.BeginSession(ctx, f.ThreadID)
			if err != nil {
				code := CodeInvalidParams
				if !errors.Is(err, domain.ErrInvalidSession) {
					code = CodeUpstream
				}
				s.sendFrame(client, NewErrorFrame(f.ID, f.ThreadID, code, err.Error()))
				continue
			}
			s.sendFrame(client, NewStarted(f.ID, id))

		case FrameMessage:
			if f.ThreadID == "" || f.Message == "" {
				s.sendFrame(client, NewErrorFrame(f.ID, f.ThreadID, CodeInvalidParams, errMissingParams))
				continue
			}
			s.wsRound(ctx, client, f)

		default:
			s.sendFrame(client, NewErrorFrame(f.ID, f.ThreadID, CodeProtocol, "unknown frame type: "+f.Type))
		}
	}
}

func (s *Server) wsRound(ctx context.Context, client *Client, f Frame) {
	forward := func(ev llm.StreamEvent) {
		switch ev.Type {
		case llm.EventDelta:
			s.sendFrame(client, NewDelta(f.ID, f.ThreadID, ev.Content, s.eventSeq.Add(1)))
		case llm.EventError:
			s.sendFrame(client, NewErrorFrame(f.ID, f.ThreadID, CodeUpstream, ev.Error))
		}
	}

	res, err := s.runner.SubmitMessage(ctx, f.ThreadID, f.Message, forward)
	switch {
	case errors.Is(err, domain.ErrInvalidSession):
		s.sendFrame(client, NewErrorFrame(f.ID, f.ThreadID, CodeUnknownSession, errUnknownSession))
	case errors.Is(err, stream.ErrUpstream):
		// The error frame was already forwarded by the stream.
	case errors.Is(err, domain.ErrTurnOrder):
		s.sendFrame(client, NewErrorFrame(f.ID, f.ThreadID, CodeTurnOrder, err.Error()))
	case err != nil:
		s.log.Error().Err(err).Str("sessionId", f.ThreadID).Msg("send message failed")
		s.sendFrame(client, NewErrorFrame(f.ID, f.ThreadID, CodeInternal, "could not send message"))
	default:
		s.sendFrame(client, NewDone(f.ID, f.ThreadID, TurnInfo{
			Partial:    res.Partial,
			Model:      res.Model,
			Length:     len(res.Response),
			DurationMs: res.Duration.Milliseconds(),
		}))
	}
}

func (s *Server) sendFrame(c *Client, f Frame) {
	if err := c.Send(f); err != nil && !errors.Is(err, ErrClientClosed) {
		s.log.Debug().Err(err).Str("connId", c.ConnID).Str("type", f.Type).Msg("send frame failed")
	}
}

// decodeBody reads an optional JSON body. An empty body leaves target untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	err := json.NewDecoder(r.Body).Decode(target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
