package notifications

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quillpress/backend/internal/auth"
	"github.com/quillpress/backend/internal/middleware"
	"github.com/quillpress/backend/internal/models"
	"github.com/quillpress/backend/internal/stream"
)

const (
	waitTimeout = 2 * time.Second
	adminID     = int64(1)
	readerID    = int64(9)
)

type userMap map[int64]*models.User

func (m userMap) GetByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

type testEnv struct {
	server   *httptest.Server
	repo     *fakeRepo
	hub      *Hub
	clock    *testclock.Clock
	registry *stream.Registry
	jwt      *auth.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	env := &testEnv{
		repo:     newFakeRepo(adminID, readerID),
		hub:      NewHub(logger, nil, nil),
		clock:    testclock.NewClock(time.Unix(0, 0)),
		registry: stream.NewRegistry(),
		jwt:      auth.NewJWTService("secret", 1),
	}
	users := userMap{
		adminID:  {ID: adminID, Role: models.RoleAdmin},
		readerID: {ID: readerID, Role: models.RoleUser},
	}
	resolver := auth.NewSessionResolver(env.jwt, users, "token")
	h := NewHandler(env.repo, env.hub, env.registry, stream.Options{
		PollInterval: 5 * time.Second,
		Clock:        env.clock,
	}, Config{WSHeartbeat: 15 * time.Second}, logger)

	r := gin.New()
	n := r.Group("/api/notifications", middleware.RequireUser(resolver, logger))
	n.GET("", h.List)
	n.GET("/stream", h.Stream)
	n.GET("/ws", h.StreamWS)
	n.PATCH("/:id/read", h.MarkRead)
	n.POST("/read-all", h.ReadAll)
	r.POST("/api/admin/notifications", middleware.RequireAdmin(resolver, logger), h.Create)

	env.server = httptest.NewServer(r)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := e.jwt.Generate(userID, "x@example.com", "")
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, ctx context.Context, method, path string, userID int64, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.server.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.AddCookie(&http.Cookie{Name: "token", Value: e.token(t, userID)})
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) create(t *testing.T, userID int64) {
	t.Helper()
	resp := e.do(t, context.Background(), http.MethodPost, "/api/admin/notifications", adminID,
		CreateRequest{UserID: userID, Type: "comment", Message: "new comment"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func readFeed(t *testing.T, br *bufio.Reader) models.NotificationFeed {
	t.Helper()
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), "not a data line: %q", line)
	blank, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "\n", blank)

	var feed models.NotificationFeed
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSuffix(line, "\n"), "data: ")), &feed))
	return feed
}

func newestOf(t *testing.T, feed models.NotificationFeed) int64 {
	t.Helper()
	id, ok := feed.NewestID()
	require.True(t, ok)
	return id
}

func TestStreamRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, context.Background(), http.MethodGet, "/api/notifications/stream", 0, nil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.NotContains(t, string(body), "data:")
	assert.Zero(t, env.repo.callCount())
	assert.Zero(t, env.registry.Len())
	assert.Zero(t, env.hub.Watchers(readerID))
}

func TestStreamFailsClosedWhenFirstSnapshotFails(t *testing.T) {
	env := newTestEnv(t)
	env.repo.setErr(errStoreDown)

	resp := env.do(t, context.Background(), http.MethodGet, "/api/notifications/stream", readerID, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Zero(t, env.registry.Len())
	assert.Zero(t, env.hub.Watchers(readerID))
}

func TestStreamDeliversNewNotifications(t *testing.T) {
	env := newTestEnv(t)
	first := env.repo.add(readerID, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp := env.do(t, ctx, http.MethodGet, "/api/notifications/stream", readerID, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	br := bufio.NewReader(resp.Body)

	feed := readFeed(t, br)
	assert.Equal(t, first, newestOf(t, feed))
	assert.Equal(t, 1, feed.UnreadCount)

	// A quiet poll sends nothing.
	require.NoError(t, env.clock.WaitAdvance(5*time.Second, waitTimeout, 1))
	require.NoError(t, env.clock.WaitAdvance(0, waitTimeout, 1))

	// Creating a notification wakes the stream without waiting for a poll.
	env.create(t, readerID)
	feed = readFeed(t, br)
	second := newestOf(t, feed)
	assert.Greater(t, second, first)
	assert.Len(t, feed.Notifications, 2)
	assert.Equal(t, 2, feed.UnreadCount)

	// Reading a notification changes only the unread count, which is not
	// worth a frame on its own.
	mark := env.do(t, context.Background(), http.MethodPatch, "/api/notifications/"+itoa(second)+"/read", readerID, nil)
	mark.Body.Close()
	require.Equal(t, http.StatusNoContent, mark.StatusCode)
	require.NoError(t, env.clock.WaitAdvance(5*time.Second, waitTimeout, 1))
	require.NoError(t, env.clock.WaitAdvance(0, waitTimeout, 1))

	env.create(t, readerID)
	feed = readFeed(t, br)
	assert.Greater(t, newestOf(t, feed), second)
	assert.Equal(t, 2, feed.UnreadCount)

	assert.Equal(t, 1, env.hub.Watchers(readerID))
	cancel()
	assert.Eventually(t, func() bool {
		return env.registry.Len() == 0 && env.hub.Watchers(readerID) == 0
	}, waitTimeout, 10*time.Millisecond)
}

func TestWebSocketStream(t *testing.T) {
	env := newTestEnv(t)
	first := env.repo.add(readerID, false)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/notifications/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Cookie": {"token=" + env.token(t, readerID)}})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))

	var feed models.NotificationFeed
	require.NoError(t, conn.ReadJSON(&feed))
	assert.Equal(t, first, newestOf(t, feed))

	env.create(t, readerID)
	require.NoError(t, conn.ReadJSON(&feed))
	assert.Greater(t, newestOf(t, feed), first)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return env.registry.Len() == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestWebSocketRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/notifications/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, env.repo.callCount())
}

func TestListAndReadAll(t *testing.T) {
	env := newTestEnv(t)
	env.repo.add(readerID, false)
	env.repo.add(readerID, true)
	env.repo.add(readerID, false)

	resp := env.do(t, context.Background(), http.MethodGet, "/api/notifications", readerID, nil)
	var list struct {
		Data models.NotificationFeed `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Len(t, list.Data.Notifications, 3)
	assert.Equal(t, 2, list.Data.UnreadCount)

	resp = env.do(t, context.Background(), http.MethodPost, "/api/notifications/read-all", readerID, nil)
	var updated struct {
		Data struct {
			Updated int64 `json:"updated"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	resp.Body.Close()
	assert.Equal(t, int64(2), updated.Data.Updated)
}

func TestMarkReadErrors(t *testing.T) {
	env := newTestEnv(t)
	other := env.repo.add(adminID, false)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "bad id", path: "/api/notifications/abc/read", status: http.StatusBadRequest},
		{name: "someone else's", path: "/api/notifications/" + itoa(other) + "/read", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, context.Background(), http.MethodPatch, tt.path, readerID, nil)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		caller int64
		body   CreateRequest
		status int
	}{
		{name: "not an admin", caller: readerID, body: CreateRequest{UserID: readerID, Type: "LIKE", Message: "m"}, status: http.StatusForbidden},
		{name: "unknown type", caller: adminID, body: CreateRequest{UserID: readerID, Type: "POKE", Message: "m"}, status: http.StatusBadRequest},
		{name: "missing message", caller: adminID, body: CreateRequest{UserID: readerID, Type: "LIKE"}, status: http.StatusBadRequest},
		{name: "unknown recipient", caller: adminID, body: CreateRequest{UserID: 404, Type: "LIKE", Message: "m"}, status: http.StatusBadRequest},
		{name: "ok", caller: adminID, body: CreateRequest{UserID: readerID, Type: "like", Message: "m"}, status: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, context.Background(), http.MethodPost, "/api/admin/notifications", tt.caller, tt.body)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
