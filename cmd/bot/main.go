package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"realmsync.io/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		token    = flag.String("token", os.Getenv("REALM_BOT_TOKEN"), "auth token (see realmctl token mint)")
		username = flag.String("username", "", "account username (password auth)")
		password = flag.String("password", os.Getenv("REALM_BOT_PASSWORD"), "account password")
		every    = flag.Duration("every", 500*time.Millisecond, "movement interval")
		step     = flag.Float64("step", 1.5, "max distance per move")
		chatN    = flag.Int("chat_every", 20, "say something locally every N moves (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var wmu sync.Mutex
	send := func(typ string, data any) error {
		b, err := protocol.Encode(typ, data)
		if err != nil {
			return err
		}
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	if err := send(protocol.TypeAuth, protocol.AuthReq{Token: *token, Username: *username, Password: *password}); err != nil {
		logger.Fatalf("send auth: %v", err)
	}
	self, err := awaitAuth(conn)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}
	logger.Printf("authenticated player_id=%s username=%s session=%s", self.PlayerID, self.Username, self.SessionID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readLoop(conn, logger)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	pos := self.Self.Pos
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return
		case <-done:
			return
		case <-ticker.C:
		}

		vel := [3]float64{(r.Float64()*2 - 1) * *step, 0, (r.Float64()*2 - 1) * *step}
		pos[0] += vel[0] / 2
		pos[2] += vel[2] / 2
		if err := send(protocol.TypeMove, protocol.MoveReq{Pos: pos, Vel: vel, Moving: true}); err != nil {
			logger.Printf("move: %v", err)
			return
		}
		if *chatN > 0 && n%*chatN == 0 {
			_ = send(protocol.TypeChat, protocol.ChatReq{Channel: protocol.ChannelLocal, Text: fmt.Sprintf("at %.1f,%.1f", pos[0], pos[2])})
		}
		if n%50 == 0 {
			_ = send(protocol.TypePing, protocol.PingMsg{ClientTime: time.Now().UnixMilli()})
		}
	}
}

func awaitAuth(conn *websocket.Conn) (protocol.AuthSuccessMsg, error) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.AuthSuccessMsg{}, err
	}
	env, err := protocol.Decode(msg)
	if err != nil {
		return protocol.AuthSuccessMsg{}, err
	}
	switch env.Type {
	case protocol.TypeAuthSuccess:
		var ok protocol.AuthSuccessMsg
		err := protocol.DecodeData(env, &ok)
		return ok, err
	case protocol.TypeAuthFailed:
		var f protocol.AuthFailedMsg
		_ = protocol.DecodeData(env, &f)
		return protocol.AuthSuccessMsg{}, fmt.Errorf("%s: %s", f.Code, f.Message)
	default:
		return protocol.AuthSuccessMsg{}, fmt.Errorf("unexpected %q before auth_success", env.Type)
	}
}

func readLoop(conn *websocket.Conn, logger *log.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				logger.Printf("closed by server: %d %s", ce.Code, ce.Text)
			}
			return
		}
		env, err := protocol.Decode(msg)
		if err != nil {
			continue
		}
		switch env.Type {
		case protocol.TypeChatMessage:
			var c protocol.ChatMsg
			if protocol.DecodeData(env, &c) == nil {
				logger.Printf("[%s] %s: %s", c.Channel, c.Username, c.Text)
			}
		case protocol.TypeMoveRejected, protocol.TypeError:
			logger.Printf("%s %s", env.Type, env.Data)
		case protocol.TypePong:
			var p protocol.PongMsg
			if protocol.DecodeData(env, &p) == nil && p.ClientTime > 0 {
				logger.Printf("rtt=%dms", time.Now().UnixMilli()-p.ClientTime)
			}
		}
	}
}
