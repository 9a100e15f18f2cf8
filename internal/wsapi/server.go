package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"gitagent/cli/internal/agentloop"
	"gitagent/cli/internal/application"
	"gitagent/cli/internal/logging"
	"gitagent/cli/internal/protocol"
)

const (
	AgentPath = "/ws/agent"

	writeTimeout = 5 * time.Second
)

// Executor runs one task. *application.Application satisfies it.
type Executor interface {
	Execute(ctx context.Context, req application.ExecuteRequest) (application.Result, error)
}

type Deps struct {
	Executor Executor
	Logger   *slog.Logger
}

type Server struct {
	exec   Executor
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		exec:    deps.Executor,
		logger:  logger,
		clients: map[*websocket.Conn]struct{}{},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(AgentPath, s.HandleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("websocket api listening", "addr", ln.Addr().String(), "path", AgentPath)
		errCh <- httpSrv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.closeClients()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	// The request context outlives a dropped socket, so a reader goroutine
	// cancels ctx when the connection goes away and in-flight runs stop.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	inbox := make(chan []byte)
	go func() {
		defer cancel()
		for {
			_, raw, err := conn.Read(ctx)
			if err != nil {
				return
			}
			select {
			case inbox <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-inbox:
			if err := s.handleMessage(ctx, conn, raw); err != nil {
				s.logger.Warn("websocket write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, raw []byte) error {
	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return s.write(ctx, conn, protocol.NewErrorResponse("", "", protocol.CodeBadRequest, "invalid json message", struct{}{}))
	}
	if msg.Type != protocol.TypeRequest || msg.Op != protocol.OpAgentRun {
		return s.write(ctx, conn, protocol.NewErrorResponse(msg.ID, msg.Op, protocol.CodeBadRequest,
			"unsupported message "+msg.Type+" "+msg.Op, struct{}{}))
	}
	var req protocol.RunRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return s.write(ctx, conn, protocol.NewErrorResponse(msg.ID, msg.Op, protocol.CodeBadRequest, "invalid payload: "+err.Error(), struct{}{}))
		}
	}
	if strings.TrimSpace(req.Task) == "" {
		return s.write(ctx, conn, protocol.NewErrorResponse(msg.ID, msg.Op, protocol.CodeBadRequest, "task is required", struct{}{}))
	}
	if s.exec == nil {
		return s.write(ctx, conn, protocol.NewErrorResponse(msg.ID, msg.Op, protocol.CodeRunFailed, "agent is not configured", struct{}{}))
	}

	var writeErr error
	observer := func(ev agentloop.RunEvent) {
		if writeErr != nil {
			return
		}
		writeErr = s.write(ctx, conn, protocol.Message{
			ID:      "evt_" + uuid.NewString(),
			Type:    protocol.TypeEvent,
			Op:      protocol.OpAgentEvent,
			Payload: protocol.MustRaw(ev),
		})
	}
	res, runErr := s.exec.Execute(ctx, application.ExecuteRequest{
		Task:          req.Task,
		Source:        "ws",
		MaxIterations: req.MaxIterations,
		Observer:      observer,
	})
	if writeErr != nil {
		return writeErr
	}
	payload := protocol.RunResult{
		RunID:      res.RunID,
		State:      string(res.State),
		FinalText:  res.FinalText,
		Iterations: res.Iterations,
	}
	if runErr != nil {
		code := protocol.CodeRunFailed
		if errors.Is(runErr, agentloop.ErrIterationLimit) {
			code = protocol.CodeIterationLimit
		}
		s.logger.Warn("agent run ended with error", "run_id", res.RunID, "code", code, "err", runErr)
		return s.write(ctx, conn, protocol.NewErrorResponse(msg.ID, msg.Op, code, runErr.Error(), payload))
	}
	return s.write(ctx, conn, protocol.NewResponse(msg.ID, msg.Op, payload))
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg protocol.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, raw)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
