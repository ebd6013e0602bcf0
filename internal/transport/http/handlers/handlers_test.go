package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulseboard/internal/auth"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/repository/memory"
	"github.com/vedran77/pulseboard/internal/service"
)

const testSecret = "handler-secret"

type apiEnv struct {
	router http.Handler
	store  *memory.Store

	admin string
	alice string
	bob   string

	aliceID uuid.UUID
	bobID   uuid.UUID
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	store := memory.New()
	channels := service.NewChannelService(store.Channels(), store.Messages(), store.Projects())
	messages := service.NewMessageService(store.Messages(), store.Channels(), store.Users())

	env := &apiEnv{
		router: NewRouter(RouterConfig{
			Channels:       channels,
			Messages:       messages,
			JWTSecret:      testSecret,
			AllowedOrigins: []string{"http://localhost:3000"},
			Log:            zerolog.Nop(),
		}),
		store:   store,
		aliceID: uuid.New(),
		bobID:   uuid.New(),
	}
	env.admin = token(t, domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin})
	env.alice = token(t, domain.Identity{UserID: env.aliceID, Role: domain.RoleMember})
	env.bob = token(t, domain.Identity{UserID: env.bobID, Role: domain.RoleMember})

	store.PutUser(domain.User{ID: env.aliceID, Name: "Alice"})
	store.PutUser(domain.User{ID: env.bobID, Name: "Bob"})
	return env
}

func token(t *testing.T, id domain.Identity) string {
	t.Helper()
	tok, err := auth.Issue(id, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *apiEnv) do(t *testing.T, tok, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func (e *apiEnv) createChannel(t *testing.T, tok string, body map[string]any) domain.Channel {
	t.Helper()
	rec := e.do(t, tok, http.MethodPost, "/api/v1/channels", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Channel](t, rec)
}

func (e *apiEnv) send(t *testing.T, tok string, channelID uuid.UUID, text string) domain.Message {
	t.Helper()
	rec := e.do(t, tok, http.MethodPost, "/api/v1/channels/"+channelID.String()+"/messages", map[string]any{"text": text})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Message](t, rec)
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, "", http.MethodGet, "/api/v1/channels", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateChannel(t *testing.T) {
	env := newAPIEnv(t)

	ch := env.createChannel(t, env.alice, map[string]any{"name": "  general  ", "description": "talk"})
	assert.Equal(t, "general", ch.Name)
	assert.Equal(t, env.aliceID, ch.CreatedBy)
	assert.Equal(t, []uuid.UUID{env.aliceID}, ch.Members)

	rec := env.do(t, env.alice, http.MethodPost, "/api/v1/channels", map[string]any{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Contains(t, body.Error.Fields, "name")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+env.alice)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndGetChannels(t *testing.T) {
	env := newAPIEnv(t)
	public := env.createChannel(t, env.alice, map[string]any{"name": "general"})
	private := env.createChannel(t, env.alice, map[string]any{"name": "secret", "is_private": true})

	env.send(t, env.alice, public.ID, "one")
	env.send(t, env.alice, public.ID, "two")

	rec := env.do(t, env.bob, http.MethodGet, "/api/v1/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.ChannelSummary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, public.ID, list[0].ID)
	assert.Equal(t, int64(2), list[0].UnreadCount)

	rec = env.do(t, env.bob, http.MethodGet, "/api/v1/channels/"+private.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Error.Code)

	rec = env.do(t, env.alice, http.MethodGet, "/api/v1/channels/"+private.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, env.alice, http.MethodGet, "/api/v1/channels/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateChannel(t *testing.T) {
	env := newAPIEnv(t)
	ch := env.createChannel(t, env.alice, map[string]any{"name": "general"})
	path := "/api/v1/channels/" + ch.ID.String()

	rec := env.do(t, env.alice, http.MethodPatch, path, map[string]any{"name": "renamed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, rec).Error.Code)

	rec = env.do(t, env.admin, http.MethodPatch, path, map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, env.admin, http.MethodPatch, path, map[string]any{"name": "renamed", "is_private": true})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[domain.Channel](t, rec)
	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.IsPrivate)

	rec = env.do(t, env.admin, http.MethodPatch, "/api/v1/channels/"+uuid.NewString(), map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteChannelCascades(t *testing.T) {
	env := newAPIEnv(t)
	ch := env.createChannel(t, env.alice, map[string]any{"name": "general"})
	msg := env.send(t, env.alice, ch.ID, "bye")
	path := "/api/v1/channels/" + ch.ID.String()

	rec := env.do(t, env.bob, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, env.admin, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, env.admin, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, env.alice, http.MethodGet, path+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, env.alice, http.MethodPost, path+"/messages", map[string]any{"text": "anyone?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, env.admin, http.MethodDelete, "/api/v1/messages/"+msg.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendAndHistory(t *testing.T) {
	env := newAPIEnv(t)
	ch := env.createChannel(t, env.alice, map[string]any{"name": "general"})
	first := env.send(t, env.alice, ch.ID, "first")
	assert.Equal(t, "Alice", first.SenderName)
	assert.Equal(t, []uuid.UUID{env.aliceID}, first.ReadBy)

	rec := env.do(t, env.bob, http.MethodPost, "/api/v1/channels/"+ch.ID.String()+"/messages",
		map[string]any{"text": "reply", "reply_to_id": first.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	reply := decode[domain.Message](t, rec)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "first", reply.ReplyTo.Text)

	rec = env.do(t, env.bob, http.MethodGet, "/api/v1/unread", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":1}`, rec.Body.String())

	rec = env.do(t, env.bob, http.MethodGet, "/api/v1/channels/"+ch.ID.String()+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]domain.Message](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, reply.ID, history[1].ID)
	assert.ElementsMatch(t, []uuid.UUID{env.aliceID, env.bobID}, history[0].ReadBy)

	rec = env.do(t, env.bob, http.MethodGet, "/api/v1/unread", nil)
	assert.JSONEq(t, `{"unread":0}`, rec.Body.String())

	rec = env.do(t, env.bob, http.MethodGet, "/api/v1/channels/"+ch.ID.String()+"/messages?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Message](t, rec), 1)
}

func TestSendValidation(t *testing.T) {
	env := newAPIEnv(t)
	general := env.createChannel(t, env.alice, map[string]any{"name": "general"})
	random := env.createChannel(t, env.alice, map[string]any{"name": "random"})
	other := env.send(t, env.alice, random.ID, "elsewhere")
	path := "/api/v1/channels/" + general.ID.String() + "/messages"

	rec := env.do(t, env.alice, http.MethodPost, path, map[string]any{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error.Fields, "text")

	rec = env.do(t, env.alice, http.MethodPost, path, map[string]any{"text": "hi", "reply_to_id": other.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, env.alice, http.MethodPost, "/api/v1/channels/"+uuid.NewString()+"/messages", map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, env.alice, http.MethodGet, path+"?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error.Fields, "limit")
}

func TestPrivateChannelSend(t *testing.T) {
	env := newAPIEnv(t)
	ch := env.createChannel(t, env.alice, map[string]any{"name": "secret", "is_private": true})

	rec := env.do(t, env.bob, http.MethodPost, "/api/v1/channels/"+ch.ID.String()+"/messages", map[string]any{"text": "let me in"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEditAndDeleteMessage(t *testing.T) {
	env := newAPIEnv(t)
	ch := env.createChannel(t, env.alice, map[string]any{"name": "general"})
	msg := env.send(t, env.alice, ch.ID, "helo")
	path := "/api/v1/messages/" + msg.ID.String()

	rec := env.do(t, env.alice, http.MethodPatch, path, map[string]any{"text": "hello"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, env.admin, http.MethodPatch, path, map[string]any{"text": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decode[domain.Message](t, rec)
	assert.Equal(t, "hello", edited.Text)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.EditedAt)

	rec = env.do(t, env.admin, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, env.admin, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, env.admin, http.MethodPatch, path, map[string]any{"text": "again"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, env.admin, http.MethodDelete, "/api/v1/messages/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, env.bob, http.MethodGet, "/api/v1/channels/"+ch.ID.String()+"/messages", nil)
	assert.Empty(t, decode[[]domain.Message](t, rec))
}

func TestCORSPreflight(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/channels", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
