package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"realmsync.io/internal/auth"
	"realmsync.io/internal/model"
	"realmsync.io/internal/protocol"
	"realmsync.io/internal/registry"
	"realmsync.io/internal/router"
)

// Close codes in the private range, one per server-initiated reason.
const (
	CloseReplaced     = 4001
	CloseSlowConsumer = 4002
	CloseKicked       = 4003
)

type Config struct {
	HandshakeTimeout time.Duration
	// ReadTimeout closes connections that stay silent; clients ping to stay alive.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 * 1024
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(r *http.Request) bool { return true } // dev default
	}
	return c
}

type Server struct {
	reg    *registry.Registry
	router *router.Router
	cfg    Config
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(reg *registry.Registry, rt *router.Router, cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()
	return &Server{
		reg:    reg,
		router: rt,
		cfg:    cfg,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(s.cfg.MaxMessageBytes)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sess := s.handshake(ctx, conn)
		if sess == nil {
			return
		}

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			s.writeLoop(conn, sess)
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.router.Dispatch(ctx, sess, msg)
		}

		// Cleanup.
		s.reg.Terminate(ctx, sess.ID)
		<-writerDone
	}
}

// writeLoop forwards queued frames until the session closes, then flushes
// what is left and says goodbye.
func (s *Server) writeLoop(conn *websocket.Conn, sess *registry.Session) {
	for {
		select {
		case b := <-sess.Out():
			if err := s.write(conn, b); err != nil {
				sess.Close("", "write failed")
				go s.reg.Terminate(context.Background(), sess.ID)
				_ = conn.Close()
				return
			}
		case <-sess.Done():
			for _, b := range sess.Drain() {
				if err := s.write(conn, b); err != nil {
					break
				}
			}
			code, reason := sess.CloseReason()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(closeCode(code), reason),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}
	}
}

func closeCode(code string) int {
	switch code {
	case "":
		return websocket.CloseNormalClosure
	case protocol.ErrSessionReplaced:
		return CloseReplaced
	case protocol.ErrSlowConsumer:
		return CloseSlowConsumer
	default:
		return CloseKicked
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *registry.Session {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	env, err := protocol.Decode(msg)
	if err != nil || env.Type != protocol.TypeAuth {
		s.reject(conn, protocol.ErrProtoBadRequest, "expected auth")
		return nil
	}
	var req protocol.AuthReq
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reject(conn, protocol.ErrProtoBadRequest, "bad auth payload")
		return nil
	}

	sess, err := s.reg.Authenticate(ctx, auth.Credentials{
		Token:    req.Token,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		e := model.AsError(err)
		var me *model.Error
		if !errors.As(err, &me) {
			s.log.Printf("authenticate: %v", err)
		}
		s.reject(conn, e.Code, e.Message)
		return nil
	}
	s.log.Printf("session %s player=%s", sess.ID, sess.PlayerID)
	return sess
}

// reject writes auth_failed and a close frame before the handler drops the
// connection.
func (s *Server) reject(conn *websocket.Conn, code, msg string) {
	_ = writeJSON(conn, s.cfg.WriteTimeout, protocol.TypeAuthFailed, protocol.AuthFailedMsg{Code: code, Message: msg})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg),
		time.Now().Add(time.Second))
}

func (s *Server) write(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func writeJSON(conn *websocket.Conn, timeout time.Duration, typ string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b, err := json.Marshal(protocol.Envelope{Type: typ, Data: data})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
