package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"lootdogs.ai/internal/app"
	"lootdogs.ai/internal/protocol"
	"lootdogs.ai/internal/sim/catalogs"
	"lootdogs.ai/internal/sim/multiworld"
	"lootdogs.ai/internal/sim/players"
	"lootdogs.ai/internal/sim/world/logic/lootgen"
)

const testMaps = `{"maps":[
  {"id":"map1","name":"Map 1","roads":[{"x0":0,"y0":0,"x1":10}],
   "buildings":[],"offices":[],"lootTypes":[{"value":10}]}
]}`

func newTestServer(t *testing.T) (*app.Runtime, *Server, string) {
	t.Helper()
	cat, err := catalogs.Parse([]byte(testMaps))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	mgr, err := multiworld.NewManager(cat, multiworld.Config{
		Loot:           lootgen.Config{Period: 5 * time.Second, Probability: 0.5},
		RetirementTime: time.Minute,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	rt, err := app.New(app.Options{
		Manager:   mgr,
		Directory: players.NewDirectory(players.NewSeededTokenGenerator(3, 4)),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv := NewServer(rt, logger)
	rt.AddListener(srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.Run(ctx)
	}()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		cancel()
		<-done
	})
	return rt, srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string, hello protocol.HelloMsg) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	hello.Type = protocol.TypeHello
	hello.ProtocolVersion = protocol.Version
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	return conn, welcome
}

func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients=%d want %d", srv.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandshakeActAndState(t *testing.T) {
	rt, srv, url := newTestServer(t)
	ctx := context.Background()

	conn, welcome := dial(t, url, protocol.HelloMsg{UserName: "rex", MapID: "map1"})
	if welcome.Type != protocol.TypeWelcome || welcome.PlayerID != 0 || welcome.MapID != "map1" || len(welcome.AuthToken) != 32 {
		t.Fatalf("welcome=%+v", welcome)
	}
	if welcome.MapsDigest == "" || welcome.DogSpeed != 1 || welcome.BagCapacity != 3 {
		t.Fatalf("welcome params=%+v", welcome)
	}
	waitClients(t, srv, 1)

	if err := conn.WriteJSON(protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Move: "R"}); err != nil {
		t.Fatalf("write act: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := rt.State(ctx, welcome.AuthToken)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if st.Players["0"].Speed == [2]float64{1, 0} {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ACT never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := rt.Tick(ctx, time.Second); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var st protocol.StateMsg
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("read state: %v", err)
	}
	if st.Type != protocol.TypeState || st.Tick != 1 || st.MapID != "map1" {
		t.Fatalf("state=%+v", st)
	}
	if st.State.Players["0"].Pos != [2]float64{1, 0} {
		t.Fatalf("dog=%+v", st.State.Players["0"])
	}
}

func TestMsgpackStateAndResume(t *testing.T) {
	rt, srv, url := newTestServer(t)
	ctx := context.Background()

	first, welcome := dial(t, url, protocol.HelloMsg{UserName: "rex", MapID: "map1"})
	first.Close()
	waitClients(t, srv, 0)

	conn, again := dial(t, url, protocol.HelloMsg{
		Auth:         &protocol.HelloAuth{Token: welcome.AuthToken},
		Capabilities: protocol.HelloCapabilities{Msgpack: true},
	})
	if again.PlayerID != welcome.PlayerID || again.AuthToken != welcome.AuthToken {
		t.Fatalf("resume joined a new dog: %+v vs %+v", again, welcome)
	}
	waitClients(t, srv, 1)

	if err := rt.Tick(ctx, 100*time.Millisecond); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("kind=%d want binary", kind)
	}
	var st protocol.StateMsg
	if err := msgpack.Unmarshal(data, &st); err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	if st.Type != protocol.TypeState || st.Tick != 1 {
		t.Fatalf("state=%+v", st)
	}
	if _, ok := st.State.Players["0"]; !ok {
		t.Fatalf("missing dog: %+v", st.State)
	}
}

func TestHandshakeRejectsUnknownMap(t *testing.T) {
	_, _, url := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, UserName: "rex", MapID: "nope"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var e protocol.ErrorMsg
	if err := json.Unmarshal(data, &e); err != nil || e.Type != protocol.TypeError || e.Code != protocol.ErrMapNotFound {
		t.Fatalf("error=%s", data)
	}
}

func TestSlowClientDropsFrames(t *testing.T) {
	rt, srv, url := newTestServer(t)
	ctx := context.Background()
	_, _ = dial(t, url, protocol.HelloMsg{UserName: "rex", MapID: "map1", Capabilities: protocol.HelloCapabilities{MaxQueue: 1}})
	waitClients(t, srv, 1)

	// Nobody reads, so once the socket buffers fill up the queue overflows.
	// The tick loop must keep going regardless.
	for i := 0; i < 50; i++ {
		if err := rt.Tick(ctx, time.Millisecond); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	m, err := rt.Metrics(ctx)
	if err != nil || m.Ticks != 50 {
		t.Fatalf("metrics=%+v err=%v", m, err)
	}
}

func TestRetiredPlayerGetsUnknownToken(t *testing.T) {
	rt, srv, url := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		conn, _ := dial(t, url, protocol.HelloMsg{UserName: "rex", MapID: "map1"})
		waitClients(t, srv, 1)
		if err := rt.Tick(ctx, 2*time.Minute); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if err := conn.WriteJSON(protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Move: "R"}); err != nil {
			t.Fatalf("write act: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("round %d: connection ended before ERROR: %v", i, err)
			}
			base, err := protocol.DecodeBase(data)
			if err != nil || base.Type != protocol.TypeError {
				continue
			}
			var e protocol.ErrorMsg
			if err := json.Unmarshal(data, &e); err != nil || e.Code != protocol.ErrUnknownToken {
				t.Fatalf("round %d: error=%s", i, data)
			}
			break
		}
		conn.Close()
		waitClients(t, srv, 0)
	}
}
