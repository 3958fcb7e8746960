package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeduel/internal/config"
	"codeduel/pkg/types"
)

func testConfig(t *testing.T, feedURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 1
	cfg.Database.Path = filepath.Join(t.TempDir(), "codeduel.db")
	cfg.Match.ProblemSourceURL = feedURL
	cfg.Match.ProblemFetchTimeout = 500 * time.Millisecond
	return cfg
}

func startApp(t *testing.T) *Application {
	t.Helper()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "offline", http.StatusServiceUnavailable)
	}))
	t.Cleanup(feed.Close)

	cfg := testConfig(t, feed.URL)
	application, err := NewApplication(cfg, zerolog.Nop())
	require.NoError(t, err)

	// Port 0 lets the kernel pick a free port.
	application.httpServer.Addr = "127.0.0.1:0"
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return application
}

func TestApplication_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = -1

	application, err := NewApplication(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, application)
}

func TestApplication_RejectsIncompleteSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_match_results.sql"),
		[]byte("CREATE TABLE match_results (id TEXT PRIMARY KEY);"), 0o644))

	cfg := testConfig(t, "http://127.0.0.1:1/problems")
	cfg.Database.MigrationsPath = dir

	application, err := NewApplication(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database schema invalid")
	assert.Nil(t, application)
}

func TestApplication_ServesHealth(t *testing.T) {
	application := startApp(t)

	resp, err := http.Get("http://" + application.GetAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func dial(t *testing.T, addr string) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var greeting types.ServerEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&greeting))
	require.Equal(t, types.EventConnected, greeting.Type)
	return conn, greeting.ConnectionID
}

// readUntil reads events until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) types.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var event types.ServerEvent
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type == eventType {
			return event
		}
	}
}

func TestApplication_MatchStartsWithOfflineProblem(t *testing.T) {
	application := startApp(t)
	addr := application.GetAddr()

	alice, _ := dial(t, addr)
	bob, _ := dial(t, addr)

	require.NoError(t, alice.WriteJSON(types.ClientEvent{Type: types.EventJoin, RoomID: "duel-1", Username: "alice", Topic: "array", Difficulty: "Easy"}))
	readUntil(t, alice, types.EventRoomUpdate)
	require.NoError(t, bob.WriteJSON(types.ClientEvent{Type: types.EventJoin, RoomID: "duel-1", Username: "bob", Topic: "array", Difficulty: "Easy"}))

	active := readUntil(t, bob, types.EventMatchActive)
	require.NotNil(t, active.Problem)
	assert.Equal(t, 1, active.Problem.DifficultyLevel)
	assert.Equal(t, "duel-1", active.RoomID)

	require.NoError(t, alice.WriteJSON(types.ClientEvent{Type: types.EventLeaveRoom, RoomID: "duel-1"}))
	left := readUntil(t, bob, types.EventPlayerLeft)
	assert.Equal(t, "bob", left.Winner)
	assert.Equal(t, "alice", left.Left)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/matches")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Matches []types.MatchResult `json:"matches"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil && len(body.Matches) == 1
	}, 5*time.Second, 50*time.Millisecond)
}
