/*
	Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/mafiaparty/games/mafia"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is what browsers send over the socket. Type selects the
// command; the remaining fields are read per type.
type ClientMessage struct {
	Type             string `json:"type"`
	Name             string `json:"name,omitempty"`
	Code             string `json:"code,omitempty"`
	MafiaDelta       int    `json:"mafia_delta,omitempty"`
	IncludeDoctor    *bool  `json:"include_doctor,omitempty"`
	IncludeDetective *bool  `json:"include_detective,omitempty"`
}

type RoomCreatedMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type RoomStateMessage struct {
	Type string     `json:"type"`
	View mafia.View `json:"view"`
}

type RoleRevealMessage struct {
	Type string `json:"type"`
	Role string `json:"role"`
	Name string `json:"name"`
	Team string `json:"team"`
	Icon string `json:"icon"`
	Desc string `json:"description"`
}

type SummaryEntry struct {
	Player string `json:"player"`
	Role   string `json:"role"`
	Icon   string `json:"icon"`
}

type GameReadyMessage struct {
	Type    string         `json:"type"`
	Summary []SummaryEntry `json:"summary,omitempty"`
}

type RoomClosedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan any
}

// trySend queues a message without blocking. Clients that stop reading get
// their connection torn down instead of stalling the sender.
func (c *wsClient) trySend(msg any) {
	select {
	case c.send <- msg:
	default:
		c.conn.Close()
	}
}

func (c *wsClient) writePump() {
	for msg := range c.send {
		err := c.conn.WriteJSON(msg)
		if err != nil {
			c.conn.Close()

			return
		}
	}
}

func (c *wsClient) readPump(cfg *Config, session *mafia.Session, remote string) {
	for {
		var msg ClientMessage

		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logf(cfg, "GAMES: Connection from %s errored: %v", remote, err)
			}

			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err = dispatch(ctx, session, c, msg)
		cancel()

		if err != nil {
			code, text := wireError(err)
			if code == "internal" {
				logf(cfg, "GAMES: Command %q from %s failed: %v", msg.Type, remote, err)
			}

			c.trySend(ErrorMessage{Type: "error", Code: code, Message: text})
		}
	}
}

func dispatch(ctx context.Context, session *mafia.Session, c *wsClient, msg ClientMessage) error {
	switch msg.Type {
	case "create":
		code, err := session.Create(ctx, msg.Name)
		if err != nil {
			return err
		}

		c.trySend(RoomCreatedMessage{Type: "room_created", Code: code})

		return nil
	case "join":
		return session.Join(ctx, msg.Code, msg.Name)
	case "leave":
		return session.Leave(ctx)
	case "ready":
		return session.Ready(ctx)
	case "settings":
		return session.AdjustSettings(ctx, mafia.SettingsDelta{
			MafiaDelta:       msg.MafiaDelta,
			IncludeDoctor:    msg.IncludeDoctor,
			IncludeDetective: msg.IncludeDetective,
		})
	case "start":
		return session.Start(ctx)
	default:
		return &mafia.ValidationError{Field: "type", Message: "unknown command"}
	}
}

// wireError maps command failures onto stable client-facing codes.
func wireError(err error) (string, string) {
	var verr *mafia.ValidationError

	switch {
	case errors.As(err, &verr):
		return "validation", verr.Message
	case errors.Is(err, mafia.ErrRoomNotFound):
		return "not_found", "Room not found. Check the code and try again."
	case errors.Is(err, mafia.ErrGameStarted):
		return "game_started", "That game has already started."
	case errors.Is(err, mafia.ErrNotHost):
		return "not_host", "Only the host can do that."
	case errors.Is(err, mafia.ErrVersionConflict):
		return "conflict", "The room changed while saving. Please try again."
	case errors.Is(err, mafia.ErrSessionClosed):
		return "closed", "This session has ended."
	default:
		return "internal", "Something went wrong. Please try again."
	}
}

// forwardEvents translates the session's event stream into socket messages.
// It returns when the session closes its stream.
func forwardEvents(cfg *Config, c *wsClient, session *mafia.Session, remote string) {
	for event := range session.Events() {
		switch event := event.(type) {
		case mafia.RoomState:
			c.trySend(RoomStateMessage{Type: "room_state", View: event.View})
		case mafia.RoleReveal:
			c.trySend(RoleRevealMessage{
				Type: "role_reveal",
				Role: event.Role.String(),
				Name: event.Info.Name,
				Team: string(event.Info.Team),
				Icon: event.Info.Icon,
				Desc: event.Info.Description,
			})
		case mafia.GameReady:
			msg := GameReadyMessage{Type: "game_ready"}

			for _, entry := range event.Summary {
				msg.Summary = append(msg.Summary, SummaryEntry{
					Player: entry.Name,
					Role:   entry.Role.String(),
					Icon:   entry.Info.Icon,
				})
			}

			c.trySend(msg)
		case mafia.RoomClosed:
			c.trySend(RoomClosedMessage{Type: "room_closed", Message: event.Reason})
		case mafia.SessionError:
			logf(cfg, "GAMES: Session for %s reported: %v", remote, event.Err)
		}
	}
}

func serveMafiaWS(cfg *Config, store mafia.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		remote := realIP(r)

		logf(cfg, "GAMES: Connection from %s", remote)

		client := &wsClient{
			conn: conn,
			send: make(chan any, 16),
		}

		session := mafia.NewSession(store)

		go client.writePump()

		forwarderDone := make(chan struct{})
		go func() {
			forwardEvents(cfg, client, session, remote)
			close(forwarderDone)
		}()

		client.readPump(cfg, session, remote)

		// The socket is gone; tidy up whatever room the player was in.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = session.Leave(ctx)
		cancel()
		if err != nil && !errors.Is(err, mafia.ErrSessionClosed) {
			logf(cfg, "GAMES: Cleanup for %s failed: %v", remote, err)
		}

		session.Close()
		<-forwarderDone
		close(client.send)

		conn.Close()

		logf(cfg, "GAMES: Connection from %s closed", remote)
	}
}
