package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialChat(t *testing.T, env *testEnv, header http.Header) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWSChat(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialChat(t, env, nil)

	frames := []struct {
		send      string
		wantReply string
		wantError string
	}{
		{`{"message":"what does HbA1c measure?"}`, "echo: what does HbA1c measure?", ""},
		{`not json`, "", "invalid message"},
		{`{"message":"  "}`, "", "message is required"},
		{`{"message":"still there?"}`, "echo: still there?", ""},
	}
	for _, f := range frames {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f.send)))

		var got wsReply
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, f.wantReply, got.Reply, f.send)
		if f.wantError == "" {
			assert.Empty(t, got.Error, f.send)
		} else {
			assert.Contains(t, got.Error, f.wantError, f.send)
		}
	}

	assert.Equal(t, []string{"what does HbA1c measure?", "still there?"}, env.agents.sent())
}

func TestWSChat_SlowReplyKeepsSocketOpen(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.WSIdleTimeout = 150 * time.Millisecond })
	env.agents.chatDelay = 400 * time.Millisecond
	conn := dialChat(t, env, nil)

	for _, msg := range []string{"first", "second"} {
		require.NoError(t, conn.WriteJSON(chatRequest{Message: msg}))

		var got wsReply
		require.NoError(t, conn.ReadJSON(&got), msg)
		assert.Equal(t, "echo: "+msg, got.Reply)
	}
}

func TestWSChat_BinaryFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialChat(t, env, nil)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))

	var got wsReply
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "only text frames are supported", got.Error)
}

func TestWSChat_CompleterError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agents.chatErr = errors.New("upstream 500")
	conn := dialChat(t, env, nil)

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "hello"}))

	var got wsReply
	require.NoError(t, conn.ReadJSON(&got))
	assert.Empty(t, got.Reply)
	assert.Contains(t, got.Error, "upstream 500")
}

func TestWSChat_Origin(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.CORSOrigins = []string{"http://clinic.example"} })
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"listed origin", "http://clinic.example", true},
		{"no origin", "", true},
		{"other origin", "http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if resp != nil && resp.Body != nil {
				defer resp.Body.Close()
			}
			if tt.ok {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
