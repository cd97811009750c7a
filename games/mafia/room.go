package mafia

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlayerID identifies one participant for the duration of one session.
// The format is opaque; only uniqueness matters.
type PlayerID string

// Player is a participant's stored state within a room.
type Player struct {
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
	Ready  bool   `json:"ready"`
	Role   *Role  `json:"role"`
}

// Settings is the host-tunable role configuration.
type Settings struct {
	MafiaCount       int  `json:"mafiaCount"`
	IncludeDoctor    bool `json:"includeDoctor"`
	IncludeDetective bool `json:"includeDetective"`
}

// DefaultSettings is the configuration a freshly created room starts with.
func DefaultSettings() Settings {
	return Settings{MafiaCount: 1, IncludeDoctor: true, IncludeDetective: true}
}

// SpecialCount is the number of enabled one-of roles.
func (s Settings) SpecialCount() int {
	count := 0
	if s.IncludeDoctor {
		count++
	}
	if s.IncludeDetective {
		count++
	}
	return count
}

// Room is the authoritative shared record for one game instance. Version is
// stamped by the store on every commit and guards concurrent updates.
type Room struct {
	Code        string              `json:"room_code"`
	HostID      PlayerID            `json:"host_id"`
	Settings    Settings            `json:"settings"`
	Players     map[PlayerID]Player `json:"players"`
	GameStarted bool                `json:"game_started"`
	AllReady    bool                `json:"all_ready"`
	Version     uint64              `json:"-"`
}

// Clone returns a deep copy, so snapshots handed to subscribers never alias
// the stored record.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Players = make(map[PlayerID]Player, len(r.Players))
	for id, p := range r.Players {
		if p.Role != nil {
			role := *p.Role
			p.Role = &role
		}
		out.Players[id] = p
	}
	return &out
}

// AllReady reports whether every player has confirmed their role.
func AllReady(players map[PlayerID]Player) bool {
	for _, p := range players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// MaxMafia is the upper bound the host may raise the mafia count to.
func MaxMafia(playerCount int) int {
	return max(playerCount/2, 3)
}

// RolePreview is the projected role breakdown shown in the host lobby.
type RolePreview struct {
	Mafia     int  `json:"mafia"`
	Civilians int  `json:"civilians"`
	Doctor    bool `json:"doctor"`
	Detective bool `json:"detective"`
}

// Preview projects what Deal would hand out for the given table size.
func Preview(playerCount int, s Settings) RolePreview {
	return RolePreview{
		Mafia:     s.MafiaCount,
		Civilians: max(0, playerCount-s.MafiaCount-s.SpecialCount()),
		Doctor:    s.IncludeDoctor,
		Detective: s.IncludeDetective,
	}
}

// Room codes skip 0/1/O/I, which read ambiguously when shared aloud or
// retyped from a screen. 32 symbols, so a masked byte is already uniform.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 4

// NewRoomCode generates a shareable 4-character room code. Uniqueness is not
// guaranteed; Store.Create reports collisions and the caller retries.
func NewRoomCode() string {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, CodeLength)
	for i := range out {
		out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(out)
}

// ValidCode reports whether code looks like a room code. It does not check
// existence, only shape.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(codeAlphabet, c) {
			return false
		}
	}
	return true
}

// NewPlayerID generates a collision-resistant session-scoped player id.
func NewPlayerID() PlayerID {
	return PlayerID(fmt.Sprintf("player_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]))
}
