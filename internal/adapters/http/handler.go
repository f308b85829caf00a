package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/farum-chats/internal/adapters/auth"
	"github.com/PabloGalante/farum-chats/internal/app/chats"
	"github.com/PabloGalante/farum-chats/internal/domain"
	"github.com/PabloGalante/farum-chats/internal/observability"
)

// allSentinel is what the web client sends for "no filter".
const allSentinel = "all"

type Server struct {
	svc *chats.Service
}

type ServerConfig struct {
	// Per-user requests per second; <= 0 disables limiting
	RateLimit float64
	RateBurst int
}

func NewServer(svc *chats.Service, identity domain.IdentityProvider, cfg ServerConfig) http.Handler {
	s := &Server{svc: svc}

	api := http.NewServeMux()

	// /chats → GET: list, POST: save, PATCH: edit
	api.HandleFunc("/chats", s.handleChats)
	api.HandleFunc("/chats/archive", s.handleArchive(true))
	api.HandleFunc("/chats/unarchive", s.handleArchive(false))
	api.HandleFunc("/chats/all", s.handleSessionsForPersona)
	api.HandleFunc("/chats/recent", s.handleRecent)

	middlewares := []func(http.Handler) http.Handler{}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, withRateLimit(newUserLimiter(cfg.RateLimit, cfg.RateBurst)))
	}
	middlewares = append(middlewares, withAuth(identity))
	protected := chainMiddlewares(api, middlewares...)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/chats", protected)
	mux.Handle("/chats/", protected)

	return chainMiddlewares(mux, withCORS, withLogging)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type saveMessageRequest struct {
	Persona     string `json:"persona"`
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
	FileURL     string `json:"fileUrl,omitempty"`
	FileType    string `json:"fileType,omitempty"`
}

type archiveRequest struct {
	SessionID string `json:"session_id"`
}

type editMessageRequest struct {
	MessageID     string  `json:"messageId"`
	NewText       string  `json:"newText"`
	NewAIResponse *string `json:"newAIResponse,omitempty"`
}

type messageResponse struct {
	ID          string    `json:"id"`
	User        string    `json:"user"`
	Persona     string    `json:"persona"`
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	Timestamp   time.Time `json:"timestamp"`
	Archived    bool      `json:"archived"`
	FileURL     string    `json:"fileUrl,omitempty"`
	FileType    string    `json:"fileType,omitempty"`
}

type sessionResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []messageResponse `json:"messages"`
	Date      time.Time         `json:"date"`
}

type recentSessionResponse struct {
	SessionID   string    `json:"session_id"`
	PersonaID   string    `json:"persona_id"`
	PersonaName string    `json:"persona_name"`
	LastMessage string    `json:"last_message"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type chatResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Chat    messageResponse `json:"chat"`
}

type chatsResponse struct {
	Success bool              `json:"success"`
	Chats   []messageResponse `json:"chats"`
}

type archiveResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ModifiedCount int    `json:"modifiedCount"`
}

type sessionsResponse struct {
	Success  bool              `json:"success"`
	Sessions []sessionResponse `json:"sessions"`
}

type recentResponse struct {
	Success bool                    `json:"success"`
	Chats   []recentSessionResponse `json:"chats"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /chats
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetMessages(w, r)
	case http.MethodPost:
		s.handleSaveMessage(w, r)
	case http.MethodPatch:
		s.handleEditMessage(w, r)
	default:
		methodNotAllowed(w)
	}
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	user := callerID(r)

	var req saveMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := s.svc.PostMessage(r.Context(), chats.PostMessageInput{
		User:        user,
		Persona:     domain.PersonaID(req.Persona),
		SessionID:   domain.SessionID(req.SessionID),
		UserMessage: req.UserMessage,
		AIResponse:  req.AIResponse,
		FileURL:     req.FileURL,
		FileType:    req.FileType,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, chatResponse{Success: true, Chat: toMessageResponse(msg)})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	user := callerID(r)
	q := r.URL.Query()

	archived, err := parseArchived(q.Get("archived"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	filter := domain.MessageFilter{Archived: archived}
	if p := optionalParam(q.Get("persona")); p != nil {
		filter.Persona = domain.Ptr(domain.PersonaID(*p))
	}
	if sid := optionalParam(q.Get("session_id")); sid != nil {
		filter.SessionID = domain.Ptr(domain.SessionID(*sid))
	}

	msgs, err := s.svc.GetMessages(r.Context(), user, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatsResponse{Success: true, Chats: toMessagesResponse(msgs)})
}

func (s *Server) handleArchive(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		user := callerID(r)

		var req archiveRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var (
			n    int
			err  error
			verb string
		)
		if archived {
			n, err = s.svc.ArchiveSession(r.Context(), user, domain.SessionID(req.SessionID))
			verb = "Archived"
		} else {
			n, err = s.svc.UnarchiveSession(r.Context(), user, domain.SessionID(req.SessionID))
			verb = "Unarchived"
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, archiveResponse{
			Success:       true,
			Message:       fmt.Sprintf("%s %d messages", verb, n),
			ModifiedCount: n,
		})
	}
}

func (s *Server) handleSessionsForPersona(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user := callerID(r)

	threads, err := s.svc.GetSessionsForPersona(r.Context(), user, domain.PersonaID(r.URL.Query().Get("persona")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, sessionResponse{
			SessionID: string(t.SessionID),
			Messages:  toMessagesResponse(t.Messages),
			Date:      t.Date,
		})
	}

	writeJSON(w, http.StatusOK, sessionsResponse{Success: true, Sessions: out})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user := callerID(r)
	q := r.URL.Query()

	limit := chats.DefaultRecentLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	in := chats.RecentSessionsInput{User: user, Limit: limit}
	if p := optionalParam(q.Get("persona")); p != nil {
		in.Persona = domain.Ptr(domain.PersonaID(*p))
	}

	summaries, err := s.svc.GetRecentSessions(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]recentSessionResponse, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, recentSessionResponse{
			SessionID:   string(sum.SessionID),
			PersonaID:   string(sum.PersonaID),
			PersonaName: sum.PersonaName,
			LastMessage: sum.LastMessage,
			UpdatedAt:   sum.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, recentResponse{Success: true, Chats: out})
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	user := callerID(r)

	var req editMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := s.svc.EditMessage(r.Context(), chats.EditMessageInput{
		User:          user,
		MessageID:     domain.MessageID(req.MessageID),
		NewText:       req.NewText,
		NewAIResponse: req.NewAIResponse,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Success: true,
		Message: "Message updated successfully",
		Chat:    toMessageResponse(msg),
	})
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

// callerID is the verified user set by withAuth. An empty value fails
// validation in the service.
func callerID(r *http.Request) domain.UserID {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

// optionalParam maps "" and the "all" sentinel to no filter.
func optionalParam(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" || v == allSentinel {
		return nil
	}
	return &v
}

func parseArchived(v string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return nil, nil
	case "true":
		return domain.Ptr(true), nil
	case "false":
		return domain.Ptr(false), nil
	default:
		return nil, fmt.Errorf("archived must be true or false")
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:          string(m.ID),
		User:        string(m.User),
		Persona:     string(m.Persona),
		SessionID:   string(m.SessionID),
		UserMessage: m.UserMessage,
		AIResponse:  m.AIResponse,
		Timestamp:   m.Timestamp,
		Archived:    m.Archived,
		FileURL:     m.FileURL,
		FileType:    m.FileType,
	}
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into v. On failure it writes the error
// response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": msg,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

// writeServiceError maps the domain error kinds to status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		badRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Message not found or unauthorized.")
	case errors.Is(err, domain.ErrStorageUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		observability.LoggerFromContext(r.Context()).Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
