package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/pkg/embedder"
	"github.com/quillforge/quill/pkg/generator"
	"github.com/quillforge/quill/pkg/processor"
	"github.com/quillforge/quill/pkg/rag"
	"github.com/quillforge/quill/pkg/store"
)

type staticManager struct {
	docs []models.Document
}

func (m *staticManager) RetrieveAll(ctx context.Context, query string, maxPerSource int) []models.Document {
	return m.docs
}

func (m *staticManager) Status(ctx context.Context) map[string]bool {
	return map[string]bool{"Encyclopedia": true}
}

func (m *staticManager) Sources() []string { return []string{"Encyclopedia"} }

func testDocument() models.Document {
	words := make([]string, 0, 60)
	for i := 0; i < 30; i++ {
		words = append(words, "quantum", "computing")
	}
	return models.Document{
		Title:   "Quantum computing",
		Source:  models.SourceEncyclopedia,
		URL:     "https://en.wikipedia.org/wiki/Quantum_computing",
		Content: strings.Join(words, " ") + ".",
	}
}

func newTestServer(t *testing.T, docs []models.Document) *httptest.Server {
	t.Helper()

	flat, err := store.NewFlat(store.FlatConfig{Path: t.TempDir(), Dimension: 1000})
	require.NoError(t, err)
	t.Cleanup(flat.Close)

	proc := processor.NewWithConfig(processor.Config{})
	system := rag.New(
		&staticManager{docs: docs},
		&proc,
		embedder.NewTFIDF(embedder.TFIDFConfig{}),
		flat,
		rag.Config{},
	)

	gen, err := generator.New(generator.Config{})
	require.NoError(t, err)

	srv := httptest.NewServer(New(system, gen).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil drains progress messages until one of the given types (or
// an error) arrives.
func readUntil(t *testing.T, conn *websocket.Conn, types ...string) Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "error" {
			return msg
		}
		for _, want := range types {
			if msg.Type == want {
				return msg
			}
		}
	}
	t.Fatal("expected message never arrived")
	return Message{}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestWebSocketContext(t *testing.T) {
	srv := newTestServer(t, []models.Document{testDocument()})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Message{Type: "context", Content: "quantum computing"}))

	msg := readUntil(t, conn, "context")
	require.Equal(t, "context", msg.Type)
	assert.Contains(t, msg.Content, "chunks")
	assert.NotNil(t, msg.Data)
}

func TestWebSocketStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Message{Type: "status"}))

	msg := readUntil(t, conn, "status")
	require.Equal(t, "status", msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
}

func TestWebSocketClear(t *testing.T) {
	srv := newTestServer(t, []models.Document{testDocument()})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Message{Type: "clear"}))

	msg := readUntil(t, conn, "cleared")
	assert.Equal(t, "cleared", msg.Type)
}

func TestWebSocketUnknownType(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Message{Type: "reboot"}))

	msg := readUntil(t, conn, "error")
	require.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "unknown message type")
}

func TestWebSocketEmptyQuery(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Message{Type: "context", Content: ""}))

	msg := readUntil(t, conn, "error")
	assert.Equal(t, "error", msg.Type)
}
