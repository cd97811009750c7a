package mafia

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// Phase is the screen a client should currently show.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLobby        // hosting a room, game not started
	PhaseWaiting      // joined someone else's room, game not started
	PhaseRoleRevealed // game started, own role dealt
	PhaseAllReady     // every player has confirmed their role
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLobby:
		return "lobby"
	case PhaseWaiting:
		return "waiting"
	case PhaseRoleRevealed:
		return "role_revealed"
	case PhaseAllReady:
		return "all_ready"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PlayerView is one row of the lobby player list.
type PlayerView struct {
	ID     PlayerID `json:"id"`
	Name   string   `json:"name"`
	IsHost bool     `json:"is_host"`
	Ready  bool     `json:"ready"`
}

// View is the state a session derives from the latest room snapshot for the
// presentation layer to render. Players are in join order.
type View struct {
	Phase       Phase        `json:"phase"`
	Code        string       `json:"code,omitempty"`
	PlayerID    PlayerID     `json:"player_id,omitempty"`
	IsHost      bool         `json:"is_host"`
	Players     []PlayerView `json:"players,omitempty"`
	PlayerCount int          `json:"player_count"`
	ReadyCount  int          `json:"ready_count"`
	Settings    Settings     `json:"settings"`
	Preview     RolePreview  `json:"preview"`
}

// Events emitted on the session's event stream.
type Event interface{ isEvent() }

// RoomState carries the re-derived view after every room snapshot.
type RoomState struct{ View View }

// RoleReveal fires exactly once per game, when the local player's role
// arrives with the started snapshot.
type RoleReveal struct {
	Role Role
	Info RoleInfo
}

// PlayerRole is one row of the host's end-of-reveal summary.
type PlayerRole struct {
	Name string
	Role Role
	Info RoleInfo
}

// GameReady fires once when every player has confirmed their role. Summary
// holds the full player-to-role mapping for the host and is nil for guests.
type GameReady struct{ Summary []PlayerRole }

// RoomClosed fires when the room was deleted out from under the session.
type RoomClosed struct{ Reason string }

// SessionError surfaces internal invariant violations for logging; the
// session keeps running.
type SessionError struct{ Err error }

func (RoomState) isEvent()    {}
func (RoleReveal) isEvent()   {}
func (GameReady) isEvent()    {}
func (RoomClosed) isEvent()   {}
func (SessionError) isEvent() {}

// SettingsDelta is a host adjustment to the room settings. Nil pointers
// leave the corresponding toggle untouched.
type SettingsDelta struct {
	MafiaDelta       int
	IncludeDoctor    *bool
	IncludeDetective *bool
}

// ErrSessionClosed is returned by commands issued after Close.
var ErrSessionClosed = errors.New("session closed")

const (
	createAttempts = 3
	mutateAttempts = 5
)

type msg interface{ isMsg() }

type cmdMsg struct {
	ctx   context.Context
	run   func(context.Context) error
	reply chan error
}

type snapMsg struct{ room *Room }

type deletedMsg struct{}

func (cmdMsg) isMsg()     {}
func (snapMsg) isMsg()    {}
func (deletedMsg) isMsg() {}

// Session binds one local participant to at most one room. All state below
// the store handle is owned by the session's loop goroutine: commands and
// store notifications funnel through one inbox and are processed one at a
// time, so no locking is needed.
//
// The caller must drain Events until it is closed by Close.
type Session struct {
	store Store

	inbox  chan msg
	events chan Event
	done   chan struct{}
	once   sync.Once

	// Loop-owned state.
	id       PlayerID
	name     string
	code     string
	isHost   bool
	phase    Phase
	lastRoom *Room
	revealed bool
	ready    bool
	unsub    func()
}

// NewSession returns a session in the Idle phase, ready for Create or Join.
func NewSession(store Store) *Session {
	s := &Session{
		store:  store,
		inbox:  make(chan msg, 64),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

// Events is the session's outbound event stream.
func (s *Session) Events() <-chan Event { return s.events }

// Close ends the session, releasing its subscription and closing the event
// stream. It does not leave the room; call Leave first if that is wanted.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) loop() {
	defer func() {
		s.releaseSub()
		close(s.events)
	}()

	for {
		select {
		case <-s.done:
			return
		case m := <-s.inbox:
			switch m := m.(type) {
			case cmdMsg:
				err := m.run(m.ctx)
				if errors.Is(err, ErrRoomNotFound) && s.phase != PhaseIdle {
					// The room vanished mid-command (host left first).
					s.closeRoom("Room no longer exists")
				}
				m.reply <- err
			case snapMsg:
				s.applySnapshot(m.room)
			case deletedMsg:
				if s.phase != PhaseIdle {
					s.closeRoom("Room has been closed")
				}
			}
		}
	}
}

func (s *Session) do(ctx context.Context, run func(context.Context) error) error {
	m := cmdMsg{ctx: ctx, run: run, reply: make(chan error, 1)}
	select {
	case s.inbox <- m:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-m.reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// Create opens a new room with the caller as host.
func (s *Session) Create(ctx context.Context, name string) (string, error) {
	var code string
	err := s.do(ctx, func(ctx context.Context) error {
		if s.phase != PhaseIdle {
			return invalid("room", "already in a room")
		}
		name := strings.TrimSpace(name)
		if name == "" {
			return invalid("name", "please enter your name")
		}

		id := NewPlayerID()
		room := &Room{
			HostID:   id,
			Settings: DefaultSettings(),
			Players: map[PlayerID]Player{
				id: {Name: name, IsHost: true},
			},
		}

		// Codes can collide; roll a fresh one and retry.
		var err error
		for range createAttempts {
			room.Code = NewRoomCode()
			err = s.store.Create(ctx, room)
			if !errors.Is(err, ErrRoomExists) {
				break
			}
		}
		if err != nil {
			return err
		}

		if err := s.subscribe(ctx, room.Code); err != nil {
			return err
		}

		s.id = id
		s.name = name
		s.code = room.Code
		s.isHost = true
		s.phase = PhaseLobby
		s.lastRoom = room
		code = room.Code

		return nil
	})
	return code, err
}

// Join adds the caller to an existing room.
func (s *Session) Join(ctx context.Context, code, name string) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.phase != PhaseIdle {
			return invalid("room", "already in a room")
		}
		name := strings.TrimSpace(name)
		if name == "" {
			return invalid("name", "please enter your name")
		}
		code := strings.ToUpper(strings.TrimSpace(code))
		if !ValidCode(code) {
			return invalid("code", "please enter a valid 4-character room code")
		}

		id := NewPlayerID()
		room, err := s.mutateRoom(ctx, code, func(r *Room) (RoomUpdate, error) {
			if r.GameStarted {
				return RoomUpdate{}, ErrGameStarted
			}
			r.Players[id] = Player{Name: name}
			return RoomUpdate{Players: r.Players}, nil
		})
		if err != nil {
			return err
		}

		if err := s.subscribe(ctx, code); err != nil {
			return err
		}

		s.id = id
		s.name = name
		s.code = code
		s.isHost = false
		s.phase = PhaseWaiting
		s.lastRoom = room

		return nil
	})
}

// Leave exits the current room. The host leaving deletes the room for
// everyone; a guest leaving removes only their own entry. The local session
// returns to Idle regardless of store errors, which are reported for
// logging.
func (s *Session) Leave(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.phase == PhaseIdle {
			return nil
		}

		s.releaseSub()

		var err error
		if s.isHost {
			err = s.store.Delete(ctx, s.code)
		} else {
			id := s.id
			_, err = s.mutateRoom(ctx, s.code, func(r *Room) (RoomUpdate, error) {
				delete(r.Players, id)
				return RoomUpdate{Players: r.Players}, nil
			})
			if errors.Is(err, ErrRoomNotFound) {
				err = nil
			}
		}

		s.reset()
		return err
	})
}

// Ready confirms the caller has seen their role. Once set it is never unset
// within a game. When the last player confirms, allReady is committed in the
// same update.
func (s *Session) Ready(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.phase == PhaseIdle {
			return invalid("room", "not in a room")
		}
		if s.phase == PhaseLobby || s.phase == PhaseWaiting {
			return invalid("room", "no role to confirm yet")
		}

		id := s.id
		room, err := s.mutateRoom(ctx, s.code, func(r *Room) (RoomUpdate, error) {
			p, ok := r.Players[id]
			if !ok {
				return RoomUpdate{}, ErrRoomNotFound
			}
			p.Ready = true
			r.Players[id] = p
			allReady := AllReady(r.Players)
			r.AllReady = allReady
			return RoomUpdate{Players: r.Players, AllReady: &allReady}, nil
		})
		if err != nil {
			return err
		}

		s.ready = true
		s.lastRoom = room
		return nil
	})
}

// AdjustSettings applies a host-only settings change. Bounds are enforced
// locally before any store write: the mafia count stays within
// [1, max(players/2, 3)].
func (s *Session) AdjustSettings(ctx context.Context, delta SettingsDelta) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.phase == PhaseIdle {
			return invalid("room", "not in a room")
		}
		if !s.isHost {
			return ErrNotHost
		}

		if delta.MafiaDelta != 0 && s.lastRoom != nil {
			next := s.lastRoom.Settings.MafiaCount + delta.MafiaDelta
			if next < 1 {
				return invalid("mafiaCount", "at least one mafia is required")
			}
			if next > MaxMafia(len(s.lastRoom.Players)) {
				return invalid("mafiaCount", "too many mafia for this player count")
			}
		}

		room, err := s.mutateRoom(ctx, s.code, func(r *Room) (RoomUpdate, error) {
			next := r.Settings
			next.MafiaCount += delta.MafiaDelta
			if delta.IncludeDoctor != nil {
				next.IncludeDoctor = *delta.IncludeDoctor
			}
			if delta.IncludeDetective != nil {
				next.IncludeDetective = *delta.IncludeDetective
			}
			r.Settings = next
			return RoomUpdate{Settings: &next}, nil
		})
		if err != nil {
			return err
		}

		s.lastRoom = room
		return nil
	})
}

// Start deals roles and commits them together with the started flag, in one
// update. Host-only; requires at least 3 players and enough seats for the
// configured roles.
func (s *Session) Start(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.phase == PhaseIdle {
			return invalid("room", "not in a room")
		}
		if !s.isHost {
			return ErrNotHost
		}
		if s.lastRoom != nil {
			if err := checkStartable(s.lastRoom); err != nil {
				return err
			}
		}

		room, err := s.mutateRoom(ctx, s.code, func(r *Room) (RoomUpdate, error) {
			if r.GameStarted {
				return RoomUpdate{}, ErrGameStarted
			}
			// Players may have joined or left since the local check.
			if err := checkStartable(r); err != nil {
				return RoomUpdate{}, err
			}

			ids := make([]PlayerID, 0, len(r.Players))
			for id := range r.Players {
				ids = append(ids, id)
			}
			dealt := Deal(ids, r.Settings)
			for id, role := range dealt {
				p := r.Players[id]
				role := role
				p.Role = &role
				r.Players[id] = p
			}

			r.GameStarted = true
			started := true
			return RoomUpdate{Players: r.Players, GameStarted: &started}, nil
		})
		if err != nil {
			return err
		}

		s.lastRoom = room
		return nil
	})
}

func checkStartable(r *Room) error {
	if len(r.Players) < 3 {
		return invalid("players", "need at least 3 players to start")
	}
	if required := r.Settings.MafiaCount + r.Settings.SpecialCount(); required > len(r.Players) {
		return invalid("settings", "too many special roles for the player count")
	}
	return nil
}

// mutateRoom runs a read-modify-write cycle against the store, retrying on
// version conflicts. apply edits the freshly read room in place and returns
// the fields to commit; the edited room is returned on success so callers
// can refresh their local copy without waiting for the snapshot.
func (s *Session) mutateRoom(ctx context.Context, code string, apply func(*Room) (RoomUpdate, error)) (*Room, error) {
	err := error(ErrVersionConflict)
	for range mutateAttempts {
		var room *Room
		room, err = s.store.Get(ctx, code)
		if err != nil {
			return nil, err
		}

		var u RoomUpdate
		u, err = apply(room)
		if err != nil {
			return nil, err
		}

		err = s.store.Update(ctx, code, room.Version, u)
		if err == nil {
			room.Version++
			return room, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, err
}

func (s *Session) subscribe(ctx context.Context, code string) error {
	s.releaseSub()

	unsub, err := s.store.Subscribe(ctx, code,
		func(r *Room) {
			select {
			case s.inbox <- snapMsg{room: r}:
			case <-s.done:
			}
		},
		func() {
			select {
			case s.inbox <- deletedMsg{}:
			case <-s.done:
			}
		},
	)
	if err != nil {
		return err
	}

	s.unsub = unsub
	return nil
}

func (s *Session) releaseSub() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// applySnapshot folds one remote snapshot into the session. Processing the
// same snapshot again yields the same view and fires no transition twice.
func (s *Session) applySnapshot(room *Room) {
	if s.phase == PhaseIdle || room.Code != s.code {
		return
	}

	s.lastRoom = room

	if room.GameStarted && !s.revealed {
		if p, ok := room.Players[s.id]; ok && p.Role != nil {
			info, err := p.Role.Info()
			if err != nil {
				s.emit(SessionError{Err: err})
			} else {
				s.revealed = true
				s.phase = PhaseRoleRevealed
				s.emit(RoleReveal{Role: *p.Role, Info: info})
			}
		}
	}

	if room.AllReady && s.revealed && s.phase != PhaseAllReady {
		s.phase = PhaseAllReady
		s.emit(GameReady{Summary: s.summary(room)})
	}

	s.emit(RoomState{View: s.view()})
}

// closeRoom force-transitions to Idle after the room disappeared remotely.
func (s *Session) closeRoom(reason string) {
	s.releaseSub()
	s.reset()
	s.emit(RoomClosed{Reason: reason})
	s.emit(RoomState{View: s.view()})
}

func (s *Session) reset() {
	s.id = ""
	s.name = ""
	s.code = ""
	s.isHost = false
	s.phase = PhaseIdle
	s.lastRoom = nil
	s.revealed = false
	s.ready = false
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	case <-s.done:
	}
}

func (s *Session) view() View {
	v := View{
		Phase:    s.phase,
		Code:     s.code,
		PlayerID: s.id,
		IsHost:   s.isHost,
	}
	if s.lastRoom == nil {
		return v
	}

	r := s.lastRoom
	for _, id := range sortedIDs(r.Players) {
		p := r.Players[id]
		v.Players = append(v.Players, PlayerView{
			ID:     id,
			Name:   p.Name,
			IsHost: p.IsHost,
			Ready:  p.Ready,
		})
		if p.Ready {
			v.ReadyCount++
		}
	}
	v.PlayerCount = len(r.Players)
	v.Settings = r.Settings
	v.Preview = Preview(len(r.Players), r.Settings)

	return v
}

func (s *Session) summary(room *Room) []PlayerRole {
	if !s.isHost {
		return nil
	}

	out := make([]PlayerRole, 0, len(room.Players))
	for _, id := range sortedIDs(room.Players) {
		p := room.Players[id]
		if p.Role == nil {
			continue
		}
		info, err := p.Role.Info()
		if err != nil {
			s.emit(SessionError{Err: err})
			continue
		}
		out = append(out, PlayerRole{Name: p.Name, Role: *p.Role, Info: info})
	}
	return out
}

// Player ids embed their creation time, so sorting them yields join order.
func sortedIDs(players map[PlayerID]Player) []PlayerID {
	ids := make([]PlayerID, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
