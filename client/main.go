package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// send wraps a payload into the event envelope and writes it as JSON.
func send(c *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.WriteJSON(envelope{Event: event, Data: raw})
}

func main() {
	addr := flag.String("addr", "localhost:8001", "server address")
	room := flag.String("room", "", "room code to join")
	player := flag.String("player", "", "player id")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var env envelope
			if err := c.ReadJSON(&env); err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- RECV [%s]: %s", env.Event, string(env.Data))
		}
	}()

	if *room != "" && *player != "" {
		log.Printf("Joining room %s as %s...", *room, *player)
		join := map[string]string{"room_code": *room, "player_id": *player}
		if err := send(c, "join_game", join); err != nil {
			log.Println("Write error:", err)
			return
		}
	}

	log.Println("Client started. Commands: ready, start, freeze <id>, unfreeze <id>, leave")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			var err error
			switch fields[0] {
			case "ready":
				err = send(c, "player_ready", map[string]any{"room_code": *room, "player_id": *player, "is_ready": true})
			case "start":
				err = send(c, "start_game", map[string]string{"room_code": *room, "player_id": *player})
			case "freeze":
				if len(fields) < 2 {
					log.Println("usage: freeze <player_id>")
					continue
				}
				err = send(c, "freeze_player", map[string]string{"room_code": *room, "mraz_id": *player, "frozen_player_id": fields[1]})
			case "unfreeze":
				if len(fields) < 2 {
					log.Println("usage: unfreeze <player_id>")
					continue
				}
				err = send(c, "unfreeze_player", map[string]string{"room_code": *room, "unfreezer_id": *player, "frozen_player_id": fields[1]})
			case "leave":
				err = send(c, "leave_game", map[string]string{"room_code": *room, "player_id": *player})
			default:
				log.Printf("Unknown command %q", fields[0])
				continue
			}
			if err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT: %s", fields[0])
		}
	}
}
