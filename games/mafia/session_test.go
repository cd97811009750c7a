package mafia_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/mafiaparty/games/mafia"
	"github.com/Seednode/mafiaparty/games/mafia/memstore"
)

const eventTimeout = 2 * time.Second

// waitEvent discards events until one of type T arrives.
func waitEvent[T mafia.Event](t *testing.T, s *mafia.Session) T {
	t.Helper()

	deadline := time.After(eventTimeout)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if v, ok := e.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
		}
	}
}

// waitView discards events until a RoomState satisfying cond arrives.
func waitView(t *testing.T, s *mafia.Session, cond func(mafia.View) bool) mafia.View {
	t.Helper()

	deadline := time.After(eventTimeout)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if rs, ok := e.(mafia.RoomState); ok && cond(rs.View) {
				return rs.View
			}
		case <-deadline:
			t.Fatal("timed out waiting for view")
		}
	}
}

func newTable(t *testing.T) (*memstore.Store, context.Context) {
	t.Helper()
	store := memstore.New(0)
	t.Cleanup(store.Close)
	return store, context.Background()
}

func startSession(t *testing.T, store mafia.Store) *mafia.Session {
	t.Helper()
	s := mafia.NewSession(store)
	t.Cleanup(s.Close)
	return s
}

func TestCreateValidation(t *testing.T) {
	store, ctx := newTable(t)
	s := startSession(t, store)

	_, err := s.Create(ctx, "   ")
	var verr *mafia.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
}

func TestJoinValidation(t *testing.T) {
	store, ctx := newTable(t)
	s := startSession(t, store)

	var verr *mafia.ValidationError

	require.ErrorAs(t, s.Join(ctx, "ABCD", ""), &verr)
	assert.Equal(t, "name", verr.Field)

	require.ErrorAs(t, s.Join(ctx, "TOOLONG", "bob"), &verr)
	assert.Equal(t, "code", verr.Field)

	assert.ErrorIs(t, s.Join(ctx, "ABCD", "bob"), mafia.ErrRoomNotFound)
}

func TestJoinLowercasesAccepted(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	guest := startSession(t, store)
	require.NoError(t, guest.Join(ctx, strings.ToLower(code), "bob"))

	view := waitView(t, guest, func(v mafia.View) bool { return v.PlayerCount == 2 })
	assert.Equal(t, code, view.Code)
	assert.Equal(t, mafia.PhaseWaiting, view.Phase)
}

func TestJoinAfterStartRejected(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	for _, name := range []string{"bob", "cat"} {
		g := startSession(t, store)
		require.NoError(t, g.Join(ctx, code, name))
	}

	waitView(t, host, func(v mafia.View) bool { return v.PlayerCount == 3 })
	require.NoError(t, host.Start(ctx))

	late := startSession(t, store)
	assert.ErrorIs(t, late.Join(ctx, code, "dan"), mafia.ErrGameStarted)
}

func TestGuestOnlyCommandsRejected(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	guest := startSession(t, store)
	require.NoError(t, guest.Join(ctx, code, "bob"))

	assert.ErrorIs(t, guest.Start(ctx), mafia.ErrNotHost)
	assert.ErrorIs(t, guest.AdjustSettings(ctx, mafia.SettingsDelta{MafiaDelta: 1}), mafia.ErrNotHost)
}

func TestSettingsBounds(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	var verr *mafia.ValidationError

	// Reducing below 1 is rejected locally, with no store write.
	require.ErrorAs(t, host.AdjustSettings(ctx, mafia.SettingsDelta{MafiaDelta: -1}), &verr)
	room, err := store.Get(ctx, code)
	require.NoError(t, err)
	assert.EqualValues(t, 1, room.Version, "rejected adjustment must not hit the store")

	// Small tables allow up to 3 mafia.
	require.NoError(t, host.AdjustSettings(ctx, mafia.SettingsDelta{MafiaDelta: 1}))
	require.NoError(t, host.AdjustSettings(ctx, mafia.SettingsDelta{MafiaDelta: 1}))
	require.ErrorAs(t, host.AdjustSettings(ctx, mafia.SettingsDelta{MafiaDelta: 1}), &verr)

	room, err = store.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 3, room.Settings.MafiaCount)
}

func TestStartRequiresThreePlayers(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	_, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	var verr *mafia.ValidationError
	require.ErrorAs(t, host.Start(ctx), &verr)
	assert.Equal(t, "players", verr.Field)
}

func TestStartRejectsRoleOverflow(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	for _, name := range []string{"bob", "cat"} {
		g := startSession(t, store)
		require.NoError(t, g.Join(ctx, code, name))
	}
	waitView(t, host, func(v mafia.View) bool { return v.PlayerCount == 3 })

	// 2 mafia + doctor + detective > 3 players.
	require.NoError(t, host.AdjustSettings(ctx, mafia.SettingsDelta{MafiaDelta: 1}))

	var verr *mafia.ValidationError
	require.ErrorAs(t, host.Start(ctx), &verr)
	assert.Equal(t, "settings", verr.Field)
}

// Scenario: 3 players, one mafia, doctor on, detective off. Exactly one
// mafia, one doctor and one civilian are dealt, each player is shown their
// own role once, and readiness converges to the host summary.
func TestFullGame(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	guests := make([]*mafia.Session, 0, 2)
	for _, name := range []string{"bob", "cat"} {
		g := startSession(t, store)
		require.NoError(t, g.Join(ctx, code, name))
		guests = append(guests, g)
	}

	view := waitView(t, host, func(v mafia.View) bool { return v.PlayerCount == 3 })
	assert.Equal(t, mafia.PhaseLobby, view.Phase)
	assert.True(t, view.IsHost)

	off := false
	require.NoError(t, host.AdjustSettings(ctx, mafia.SettingsDelta{IncludeDetective: &off}))
	view = waitView(t, host, func(v mafia.View) bool { return !v.Settings.IncludeDetective })
	assert.Equal(t, mafia.RolePreview{Mafia: 1, Civilians: 1, Doctor: true}, view.Preview)

	require.NoError(t, host.Start(ctx))

	sessions := append([]*mafia.Session{host}, guests...)
	counts := make(map[mafia.Role]int)
	for _, s := range sessions {
		reveal := waitEvent[mafia.RoleReveal](t, s)
		counts[reveal.Role]++
		assert.NotEmpty(t, reveal.Info.Name)
	}
	assert.Equal(t, map[mafia.Role]int{
		mafia.RoleMafia:    1,
		mafia.RoleDoctor:   1,
		mafia.RoleCivilian: 1,
	}, counts)

	for _, s := range sessions {
		require.NoError(t, s.Ready(ctx))
	}

	ready := waitEvent[mafia.GameReady](t, host)
	require.Len(t, ready.Summary, 3, "host sees the full mapping")

	names := make([]string, 0, 3)
	for _, entry := range ready.Summary {
		names = append(names, entry.Name)
	}
	assert.ElementsMatch(t, []string{"ann", "bob", "cat"}, names)

	for _, g := range guests {
		ready := waitEvent[mafia.GameReady](t, g)
		assert.Nil(t, ready.Summary, "guests do not see the mapping")
	}

	view = waitView(t, host, func(v mafia.View) bool { return v.Phase == mafia.PhaseAllReady })
	assert.Equal(t, 3, view.ReadyCount)
}

// Scenario: the host leaves before the game starts; the room is deleted and
// every other client is forced back to Idle.
func TestHostLeaveClosesRoom(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	guest := startSession(t, store)
	require.NoError(t, guest.Join(ctx, code, "bob"))
	waitView(t, guest, func(v mafia.View) bool { return v.PlayerCount == 2 })

	require.NoError(t, host.Leave(ctx))

	closed := waitEvent[mafia.RoomClosed](t, guest)
	assert.NotEmpty(t, closed.Reason)

	view := waitView(t, guest, func(v mafia.View) bool { return v.Phase == mafia.PhaseIdle })
	assert.Empty(t, view.Code)

	_, err = store.Get(ctx, code)
	assert.ErrorIs(t, err, mafia.ErrRoomNotFound)
}

func TestGuestLeaveKeepsRoom(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	guest := startSession(t, store)
	require.NoError(t, guest.Join(ctx, code, "bob"))
	waitView(t, host, func(v mafia.View) bool { return v.PlayerCount == 2 })

	require.NoError(t, guest.Leave(ctx))
	waitView(t, host, func(v mafia.View) bool { return v.PlayerCount == 1 })

	room, err := store.Get(ctx, code)
	require.NoError(t, err)
	assert.Len(t, room.Players, 1)
}

// Replayed snapshots must not reset an already-revealed role or change the
// derived view: the store only promises at-least-once delivery.
func TestSnapshotIdempotence(t *testing.T) {
	store, ctx := newTable(t)

	host := startSession(t, store)
	code, err := host.Create(ctx, "ann")
	require.NoError(t, err)

	for _, name := range []string{"bob", "cat"} {
		g := startSession(t, store)
		require.NoError(t, g.Join(ctx, code, name))
	}
	waitView(t, host, func(v mafia.View) bool { return v.PlayerCount == 3 })
	require.NoError(t, host.Start(ctx))

	waitEvent[mafia.RoleReveal](t, host)
	first := waitView(t, host, func(v mafia.View) bool { return v.Phase == mafia.PhaseRoleRevealed })

	started, err := store.Get(ctx, code)
	require.NoError(t, err)

	host.InjectSnapshot(started)
	replayed := waitView(t, host, func(mafia.View) bool { return true })
	assert.Equal(t, first, replayed)

	host.InjectSnapshot(started)
	deadline := time.After(500 * time.Millisecond)
	for done := false; !done; {
		select {
		case e, ok := <-host.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if _, isReveal := e.(mafia.RoleReveal); isReveal {
				t.Fatal("role reveal fired twice")
			}
		case <-deadline:
			done = true
		}
	}
}

func TestCommandsAfterClose(t *testing.T) {
	store, ctx := newTable(t)

	s := mafia.NewSession(store)
	s.Close()

	_, err := s.Create(ctx, "ann")
	assert.ErrorIs(t, err, mafia.ErrSessionClosed)
}
