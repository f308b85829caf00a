package httpadapter_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-chats/internal/adapters/auth"
	httpadapter "github.com/PabloGalante/farum-chats/internal/adapters/http"
	"github.com/PabloGalante/farum-chats/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-chats/internal/app/chats"
	"github.com/PabloGalante/farum-chats/internal/domain"
)

type testServer struct {
	handler http.Handler
	jwt     *auth.JWTProvider
}

func newTestServer(t *testing.T, cfg httpadapter.ServerConfig) *testServer {
	t.Helper()

	provider, err := auth.NewJWTProvider("test-secret")
	require.NoError(t, err)

	store := memory.NewMessageStore()
	personas := memory.NewPersonaDirectory(domain.Persona{ID: "p1", Name: "Dana"})
	svc := chats.NewService(store, personas)

	return &testServer{
		handler: httpadapter.NewServer(svc, provider, cfg),
		jwt:     provider,
	}
}

func (ts *testServer) do(t *testing.T, user, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if user != "" {
		tok, err := ts.jwt.Issue(domain.UserID(user), user, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type chatBody struct {
	Success bool `json:"success"`
	Chat    struct {
		ID          string `json:"id"`
		User        string `json:"user"`
		SessionID   string `json:"session_id"`
		UserMessage string `json:"user_message"`
		AIResponse  string `json:"ai_response"`
		Archived    bool   `json:"archived"`
		FileURL     string `json:"fileUrl"`
	} `json:"chat"`
}

type chatsBody struct {
	Success bool `json:"success"`
	Chats   []struct {
		ID        string `json:"id"`
		SessionID string `json:"session_id"`
		Archived  bool   `json:"archived"`
	} `json:"chats"`
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	w := ts.do(t, "", http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	w := ts.do(t, "", http.MethodGet, "/chats", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSaveMessage_UsesVerifiedIdentity(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	// A "user" field in the body is ignored.
	w := ts.do(t, "u1", http.MethodPost, "/chats", map[string]string{
		"user":         "intruder",
		"persona":      "p1",
		"session_id":   "s1",
		"user_message": "hi",
		"ai_response":  "hello",
		"fileUrl":      "https://files.example/a.png",
		"fileType":     "image/png",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode[chatBody](t, w)
	require.True(t, body.Success)
	require.Equal(t, "u1", body.Chat.User)
	require.NotEmpty(t, body.Chat.ID)
	require.Equal(t, "https://files.example/a.png", body.Chat.FileURL)
}

func TestSaveMessage_MissingFields(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	w := ts.do(t, "u1", http.MethodPost, "/chats", map[string]string{"persona": "p1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "session_id")
}

func TestOversizedBodyRejected(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})
	huge := strings.Repeat("x", 2<<20)

	w := ts.do(t, "u1", http.MethodPost, "/chats", map[string]string{
		"persona":      "p1",
		"session_id":   "s1",
		"user_message": huge,
		"ai_response":  "hello",
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.Contains(t, w.Body.String(), "too large")

	w = ts.do(t, "u1", http.MethodPatch, "/chats", map[string]string{
		"messageId": "m1",
		"newText":   huge,
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = ts.do(t, "u1", http.MethodGet, "/chats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "xxxx")
}

func TestArchiveFlow(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	for _, sid := range []string{"s1", "s1", "s2"} {
		w := ts.do(t, "u1", http.MethodPost, "/chats", map[string]string{
			"persona": "p1", "session_id": sid, "user_message": "q", "ai_response": "a",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := ts.do(t, "u1", http.MethodPost, "/chats/archive", map[string]string{"session_id": "s1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2, decode[struct {
		ModifiedCount int `json:"modifiedCount"`
	}](t, w).ModifiedCount)

	w = ts.do(t, "u1", http.MethodGet, "/chats?persona=p1&archived=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[chatsBody](t, w)
	require.Len(t, list.Chats, 1)
	require.Equal(t, "s2", list.Chats[0].SessionID)

	w = ts.do(t, "u1", http.MethodGet, "/chats?persona=all&archived=true", nil)
	require.Len(t, decode[chatsBody](t, w).Chats, 2)

	w = ts.do(t, "u1", http.MethodPost, "/chats/unarchive", map[string]string{"session_id": "s1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, "u1", http.MethodGet, "/chats?archived=false", nil)
	require.Len(t, decode[chatsBody](t, w).Chats, 3)
}

func TestGetMessages_BadArchivedValue(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	w := ts.do(t, "u1", http.MethodGet, "/chats?archived=maybe", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionsForPersona(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	for _, sid := range []string{"s1", "s2", "s1"} {
		ts.do(t, "u1", http.MethodPost, "/chats", map[string]string{
			"persona": "p1", "session_id": sid, "user_message": "q", "ai_response": "a",
		})
	}

	w := ts.do(t, "u1", http.MethodGet, "/chats/all?persona=p1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Sessions []struct {
			SessionID string            `json:"session_id"`
			Messages  []json.RawMessage `json:"messages"`
		} `json:"sessions"`
	}](t, w)
	require.Len(t, body.Sessions, 2)
	require.Equal(t, "s1", body.Sessions[0].SessionID)
	require.Len(t, body.Sessions[0].Messages, 2)

	w = ts.do(t, "u1", http.MethodGet, "/chats/all", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecentSessions(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	send := func(persona, sid, text string) {
		w := ts.do(t, "u1", http.MethodPost, "/chats", map[string]string{
			"persona": persona, "session_id": sid, "user_message": text, "ai_response": "a",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	send("p1", "s1", "first")
	send("p1", "s1", "second")
	send("p2", "s2", "other persona")

	w := ts.do(t, "u1", http.MethodGet, "/chats/recent", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Chats []struct {
			SessionID   string `json:"session_id"`
			PersonaID   string `json:"persona_id"`
			PersonaName string `json:"persona_name"`
			LastMessage string `json:"last_message"`
		} `json:"chats"`
	}](t, w)
	require.Len(t, body.Chats, 2)
	require.Equal(t, "s2", body.Chats[0].SessionID)
	require.Equal(t, domain.UnknownPersonaName, body.Chats[0].PersonaName)
	require.Equal(t, "s1", body.Chats[1].SessionID)
	require.Equal(t, "Dana", body.Chats[1].PersonaName)
	require.Equal(t, "second", body.Chats[1].LastMessage)

	w = ts.do(t, "u1", http.MethodGet, "/chats/recent?limit=0", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, "u1", http.MethodGet, "/chats/recent?limit=1&persona=p1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"session_id":"s1"`)
}

func TestEditMessage(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	w := ts.do(t, "u1", http.MethodPost, "/chats", map[string]string{
		"persona": "p1", "session_id": "s1", "user_message": "typo", "ai_response": "a",
	})
	id := decode[chatBody](t, w).Chat.ID

	w = ts.do(t, "u2", http.MethodPatch, "/chats", map[string]string{"messageId": id, "newText": "mine now"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, "u1", http.MethodPatch, "/chats", map[string]string{"messageId": id, "newText": "fixed"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[chatBody](t, w)
	require.Equal(t, "fixed", body.Chat.UserMessage)
	require.Equal(t, "a", body.Chat.AIResponse)

	w = ts.do(t, "u1", http.MethodPatch, "/chats", map[string]string{"messageId": id})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	w := ts.do(t, "u1", http.MethodDelete, "/chats", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = ts.do(t, "u1", http.MethodGet, "/chats/archive", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{RateLimit: 0.001, RateBurst: 2})

	require.Equal(t, http.StatusOK, ts.do(t, "u1", http.MethodGet, "/chats", nil).Code)
	require.Equal(t, http.StatusOK, ts.do(t, "u1", http.MethodGet, "/chats", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, ts.do(t, "u1", http.MethodGet, "/chats", nil).Code)

	// Budgets are per user.
	require.Equal(t, http.StatusOK, ts.do(t, "u2", http.MethodGet, "/chats", nil).Code)
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, httpadapter.ServerConfig{})

	w := ts.do(t, "", http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
