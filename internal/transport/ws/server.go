package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"lootdogs.ai/internal/app"
	"lootdogs.ai/internal/protocol"
)

type frame struct {
	kind int
	data []byte
}

type client struct {
	conn    *websocket.Conn
	token   string
	mapID   string
	msgpack bool
	out     chan frame

	// wmu serialises writers on conn.
	wmu sync.Mutex
}

func (c *client) write(f frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(f.kind, f.data)
}

// send never blocks; frames for slow clients are dropped.
func (c *client) send(f frame) bool {
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

type Server struct {
	rt  *app.Runtime
	log *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	dropped atomic.Uint64
}

func NewServer(rt *app.Runtime, logger *log.Logger) *Server {
	s := &Server{
		rt:  rt,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[*client]struct{}{},
	}
	return s
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped counts STATE frames skipped because a client queue was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// OnTick fans the tick's session views out to connected clients. Each view is
// encoded at most once per format.
func (s *Server) OnTick(ev app.TickEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return
	}
	type key struct {
		mapID   string
		msgpack bool
	}
	encoded := map[key]frame{}
	for c := range s.clients {
		st, ok := ev.States[c.mapID]
		if !ok {
			continue
		}
		k := key{c.mapID, c.msgpack}
		f, ok := encoded[k]
		if !ok {
			msg := protocol.StateMsg{
				Type:            protocol.TypeState,
				ProtocolVersion: protocol.Version,
				Tick:            ev.Tick,
				MapID:           c.mapID,
				State:           st,
			}
			var err error
			if c.msgpack {
				f.kind = websocket.BinaryMessage
				f.data, err = msgpack.Marshal(&msg)
			} else {
				f.kind = websocket.TextMessage
				f.data, err = json.Marshal(msg)
			}
			if err != nil {
				s.log.Printf("ws: encode state: %v", err)
				continue
			}
			encoded[k] = f
		}
		if !c.send(f) {
			s.dropped.Add(1)
		}
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := s.handshake(ctx, conn)
		if c == nil {
			return
		}
		s.register(c)
		defer s.unregister(c)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-c.out:
					if err := c.write(f); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				continue
			}
			if err := s.rt.Move(ctx, c.token, act.Move); err != nil {
				if errors.Is(err, app.ErrUnknownToken) {
					// The dog retired; the connection ends right after this frame.
					if f, ferr := errorFrame(protocol.ErrUnknownToken, err.Error()); ferr == nil {
						_ = c.write(f)
					}
					closeWith(conn, "player retired")
					return
				}
				if errors.Is(err, app.ErrInvalidMove) {
					s.sendError(c, protocol.ErrInvalidArgument, err.Error())
					continue
				}
				return
			}
		}
	}
}

func errorFrame(code, msg string) (frame, error) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
	if err != nil {
		return frame{}, err
	}
	return frame{kind: websocket.TextMessage, data: b}, nil
}

// sendError queues a non-fatal ERROR frame behind pending STATE frames.
func (s *Server) sendError(c *client, code, msg string) {
	if f, err := errorFrame(code, msg); err == nil {
		c.send(f)
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}

	// Optional: resume an existing player (reconnect).
	resumeToken := ""
	if hello.Auth != nil {
		resumeToken = strings.TrimSpace(hello.Auth.Token)
	}

	var info app.PlayerInfo
	if resumeToken != "" {
		info, err = s.rt.Resume(ctx, resumeToken)
	} else {
		info, err = s.rt.JoinInfo(ctx, hello.UserName, hello.MapID)
	}
	if err != nil {
		code := protocol.ErrBadRequest
		switch {
		case errors.Is(err, app.ErrMapNotFound):
			code = protocol.ErrMapNotFound
		case errors.Is(err, app.ErrUnknownToken):
			code = protocol.ErrUnknownToken
		case errors.Is(err, app.ErrInvalidName):
			code = protocol.ErrInvalidArgument
		}
		_ = writeJSON(conn, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            code,
			Message:         err.Error(),
		})
		closeWith(conn, err.Error())
		return nil
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        info.DogID,
		AuthToken:       info.Token,
		MapID:           info.MapID,
		MapsDigest:      s.rt.MapsDigest(),
		DogSpeed:        info.DogSpeed,
		BagCapacity:     info.BagCapacity,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return &client{
		conn:    conn,
		token:   info.Token,
		mapID:   info.MapID,
		msgpack: hello.Capabilities.Msgpack,
		out:     make(chan frame, maxQ),
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
