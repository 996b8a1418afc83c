package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xhad/docqa/internal/logger"
	"github.com/xhad/docqa/pkg/rag"
)

const maxBodyBytes = 1 << 20

// Runner answers questions about a document. *rag.Service implements it.
type Runner interface {
	RunWithProgress(ctx context.Context, req rag.Request, onProgress rag.ProgressFunc) (*rag.Response, error)
}

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type inbound struct {
	Type string      `json:"type"`
	Data rag.Request `json:"data"`
}

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	config   Config
	runner   Runner
	upgrader websocket.Upgrader
}

func New(runner Runner, config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8000"
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		config: config,
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /api/v1/hackrx/run", s.handleRun)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return withRequestID(withCORS(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	logger.Info("Shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "docqa is live"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := requestID(r.Context())

	var req rag.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Code: CodeInvalidRequest, Message: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	logger.Info("[%s] run: %s, %d questions", id, req.Documents, len(req.Questions))

	resp, err := s.runner.RunWithProgress(r.Context(), req, func(e rag.Event) {
		logger.Debug("[%s] %s: %s", id, e.Stage, e.Message)
	})
	if err != nil {
		logger.Error("[%s] run failed: %v", id, err)
		status, body := errorResponse(err, resp)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Warn("Error sending message: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := requestID(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[%s] WebSocket upgrade failed: %v", id, err)
		return
	}
	defer conn.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	// Cancelled when the client disconnects.
	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("[%s] Error reading message: %v", id, err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			ws.send(Message{Type: "error", Content: "invalid message", Data: ErrorBody{Code: CodeInvalidRequest, Message: err.Error()}})
			continue
		}
		if msg.Type != "run" {
			ws.send(Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type), Data: ErrorBody{Code: CodeInvalidRequest, Message: "expected type run"}})
			continue
		}

		wg.Add(1)
		go func(req rag.Request) {
			defer wg.Done()
			s.handleMessage(ctx, ws, req)
		}(msg.Data)
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, req rag.Request) {
	resp, err := s.runner.RunWithProgress(ctx, req, func(e rag.Event) {
		ws.send(Message{Type: "status", Content: e.Message, Data: e.Stage})
	})
	if err != nil {
		_, body := errorResponse(err, resp)
		ws.send(Message{Type: "error", Content: err.Error(), Data: body})
		return
	}
	ws.send(Message{Type: "answers", Data: resp.Answers})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response: %v", err)
	}
}

type ctxKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
