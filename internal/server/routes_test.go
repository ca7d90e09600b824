package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackedfour-server/internal/game"
)

func setupTestServer(t *testing.T) (*Server, *memStore, *httptest.Server) {
	t.Helper()

	st := newMemStore()
	srv := New(Config{Port: defaultPort}, st, st)
	ts := httptest.NewServer(srv.RegisterRoutes())
	t.Cleanup(ts.Close)

	return srv, st, ts
}

// register posts a username and returns the session token from the response
// URL.
func register(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()

	body := strings.NewReader(`{"username":"` + username + `"}`)
	resp, err := http.Post(ts.URL+"/register", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reg RegisterResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	require.Contains(t, reg.URL, "/ws/")

	return reg.URL[strings.LastIndex(reg.URL, "/")+1:]
}

func dialToken(t *testing.T, ctx context.Context, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	return conn
}

func readView(t *testing.T, ctx context.Context, conn *websocket.Conn) GameView {
	t.Helper()

	msgType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, msgType)

	var view GameView
	require.NoError(t, json.Unmarshal(data, &view))
	return view
}

func TestRegisterHandler_MintsTokenAndRegistryEntry(t *testing.T) {
	srv, st, ts := setupTestServer(t)

	token := register(t, ts, "alice")

	conn, ok := srv.registry.Get(token)
	require.True(t, ok)
	assert.Equal(t, "alice", conn.Username)

	// The player was upserted by name.
	player, err := st.GetOrCreatePlayer(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, player.ID, conn.UserID)
}

func TestRegisterHandler_SameNameKeepsOnePlayer(t *testing.T) {
	srv, _, ts := setupTestServer(t)

	token1 := register(t, ts, "alice")
	token2 := register(t, ts, "alice")
	require.NotEqual(t, token1, token2, "every registration mints a fresh token")

	conn1, ok := srv.registry.Get(token1)
	require.True(t, ok)
	conn2, ok := srv.registry.Get(token2)
	require.True(t, ok)
	assert.Equal(t, conn1.UserID, conn2.UserID)
}

func TestRegisterHandler_RejectsInvalidUsername(t *testing.T) {
	_, _, ts := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/register", "application/json", strings.NewReader(`{"username":""}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnregisterHandler_RemovesEntry(t *testing.T) {
	srv, _, ts := setupTestServer(t)

	token := register(t, ts, "alice")

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/register/"+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, ok := srv.registry.Get(token)
	assert.False(t, ok)
}

func TestWebsocketHandler_RejectsUnknownToken(t *testing.T) {
	_, _, ts := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/no-such-token"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
}

func TestWebsocketHandler_ViewRequestRoundTrip(t *testing.T) {
	_, _, ts := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token := register(t, ts, "alice")
	conn := dialToken(t, ctx, ts, token)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"play":null}`)))

	view := readView(t, ctx, conn)
	assert.Equal(t, game.Red, view.YourColour)
	assert.Equal(t, "alice", view.YourName)
	assert.Nil(t, view.Winner)
	assert.Len(t, view.Squares, game.GameSize)
}

func TestWebsocketHandler_PingAndMalformedFramesAreIgnored(t *testing.T) {
	_, _, ts := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token := register(t, ts, "alice")
	conn := dialToken(t, ctx, ts, token)

	// Keepalives and garbage must neither close the connection nor produce
	// a view.
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping\n")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))

	// A well-formed request still works afterwards, proving the connection
	// survived and nothing was queued for the ignored frames.
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"play":null}`)))

	view := readView(t, ctx, conn)
	assert.Equal(t, "alice", view.YourName)

	// Nothing else is pending.
	shortCtx, shortCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer shortCancel()
	_, _, err := conn.Read(shortCtx)
	assert.Error(t, err, "only one view should have been delivered")
}

func TestWebsocketHandler_MoveBroadcastsToOpponent(t *testing.T) {
	_, _, ts := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceToken := register(t, ts, "alice")
	bobToken := register(t, ts, "bob")

	aliceConn := dialToken(t, ctx, ts, aliceToken)
	bobConn := dialToken(t, ctx, ts, bobToken)

	// Alice opens a game; bob's view request seats him as black in it.
	require.NoError(t, aliceConn.Write(ctx, websocket.MessageText, []byte(`{"play":null}`)))
	readView(t, ctx, aliceConn)
	require.NoError(t, bobConn.Write(ctx, websocket.MessageText, []byte(`{"play":null}`)))

	// Bob's resolve notified both participants.
	bobView := readView(t, ctx, bobConn)
	assert.Equal(t, game.Black, bobView.YourColour)
	assert.Equal(t, "alice", bobView.TheirName)
	aliceView := readView(t, ctx, aliceConn)
	assert.Equal(t, "bob", aliceView.TheirName)

	// Alice moves; both sides see the piece.
	require.NoError(t, aliceConn.Write(ctx, websocket.MessageText,
		[]byte(`{"play":{"row":2,"direction":"left"}}`)))

	aliceView = readView(t, ctx, aliceConn)
	bobView = readView(t, ctx, bobConn)
	require.NotNil(t, aliceView.Squares[2][0])
	require.NotNil(t, bobView.Squares[2][0])
	assert.Equal(t, game.Red, bobView.Squares[2][0].Value)
	require.NotNil(t, bobView.CurrentPlayer)
	assert.Equal(t, game.Black, *bobView.CurrentPlayer)
}

func TestHealthHandler(t *testing.T) {
	_, _, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "up", health["status"])
}

func TestCORSPreflight(t *testing.T) {
	_, _, ts := setupTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/register", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
