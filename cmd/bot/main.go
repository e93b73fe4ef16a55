package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"lootdogs.ai/internal/protocol"
)

var moves = []string{"U", "D", "L", "R"}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "dog name")
		mapID    = flag.String("map", "map1", "map id")
		token    = flag.String("token", "", "resume an existing player")
		binary   = flag.Bool("msgpack", false, "ask for msgpack STATE frames")
		turnEach = flag.Int("turn_every", 40, "pick a new direction every N ticks")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		UserName:        *name,
		MapID:           *mapID,
		Capabilities: protocol.HelloCapabilities{
			Msgpack:  *binary,
			MaxQueue: 8,
		},
	}
	if *token != "" {
		hello.Auth = &protocol.HelloAuth{Token: *token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	w := &wanderer{
		conn:     conn,
		log:      logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		turnEach: uint64(*turnEach),
	}
	for {
		select {
		case <-stop:
			return
		default:
		}

		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			var st protocol.StateMsg
			if err := msgpack.Unmarshal(msg, &st); err != nil {
				continue
			}
			w.onState(&st)
			continue
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var wm protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &wm); err != nil {
				continue
			}
			w.dogID = strconv.FormatUint(wm.PlayerID, 10)
			logger.Printf("WELCOME player_id=%d map=%s token=%s speed=%.2f bag=%d", wm.PlayerID, wm.MapID, wm.AuthToken, wm.DogSpeed, wm.BagCapacity)
			w.turn()

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			w.onState(&st)

		case protocol.TypeError:
			var em protocol.ErrorMsg
			_ = json.Unmarshal(msg, &em)
			logger.Printf("ERROR %s: %s", em.Code, em.Message)
			if em.Code == protocol.ErrUnknownToken || em.Code == protocol.ErrMapNotFound {
				return
			}
		}
	}
}

// wanderer walks in a random direction and turns when it hits the end of a
// road or after a while.
type wanderer struct {
	conn     *websocket.Conn
	log      *log.Logger
	rng      *rand.Rand
	turnEach uint64

	dogID string
	score int
}

func (w *wanderer) onState(st *protocol.StateMsg) {
	dog, ok := st.State.Players[w.dogID]
	if !ok {
		return
	}
	if dog.Score != w.score {
		w.log.Printf("tick=%d banked, score=%d", st.Tick, dog.Score)
		w.score = dog.Score
	}
	if dog.Speed == [2]float64{} || (w.turnEach > 0 && st.Tick%w.turnEach == 0) {
		w.turn()
	}
}

func (w *wanderer) turn() {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Move:            moves[w.rng.Intn(len(moves))],
	}
	_ = w.conn.WriteJSON(act)
}
