// Package server exposes the pipeline over WebSocket and HTTP: clients
// request context bundles, generated drafts, status and clearing over
// /ws, with /health and /status for plain HTTP checks.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quillforge/quill/pkg/generator"
	"github.com/quillforge/quill/pkg/logging"
	"github.com/quillforge/quill/pkg/rag"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the WebSocket envelope in both directions. Type selects
// the operation on the way in and labels the payload on the way out.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	system    *rag.System
	generator *generator.BlogGenerator
	log       zerolog.Logger
}

func New(system *rag.System, gen *generator.BlogGenerator) *Server {
	return &Server{
		system:    system,
		generator: gen,
		log:       logging.Component("server"),
	}
}

// Handler returns the HTTP mux with /ws, /health and /status routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("starting server")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.system.Status(r.Context())); err != nil {
		s.log.Warn().Err(err).Msg("failed to write status")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("read failed")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.send(conn, Message{Type: "error", Content: "invalid message"})
			continue
		}

		s.handleMessage(r.Context(), conn, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case "context":
		s.handleContext(ctx, conn, msg.Content)
	case "generate":
		s.handleGenerate(ctx, conn, msg.Content)
	case "status":
		s.send(conn, Message{Type: "status", Data: s.system.Status(ctx)})
	case "clear":
		if err := s.system.ClearDatabase(); err != nil {
			s.send(conn, Message{Type: "error", Content: err.Error()})
			return
		}
		s.send(conn, Message{Type: "cleared", Content: "vector database cleared"})
	default:
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *Server) handleContext(ctx context.Context, conn *websocket.Conn, query string) {
	if query == "" {
		s.send(conn, Message{Type: "error", Content: "empty query"})
		return
	}

	s.send(conn, Message{Type: "progress", Content: "preparing context"})

	bundle, err := s.system.PrepareContext(ctx, query)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}

	s.send(conn, Message{
		Type:    "context",
		Content: fmt.Sprintf("%d chunks from %d sources", bundle.TotalChunks, len(bundle.SourcesUsed)),
		Data:    bundle,
	})
}

func (s *Server) handleGenerate(ctx context.Context, conn *websocket.Conn, topic string) {
	if topic == "" {
		s.send(conn, Message{Type: "error", Content: "empty topic"})
		return
	}

	s.send(conn, Message{Type: "progress", Content: "preparing context"})

	bundle, err := s.system.PrepareContext(ctx, topic)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}

	s.send(conn, Message{Type: "progress", Content: "drafting post"})

	post, err := s.generator.Generate(ctx, topic, bundle)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}

	s.send(conn, Message{Type: "post", Content: post.Title, Data: post})
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn().Err(err).Msg("failed to send message")
	}
}
