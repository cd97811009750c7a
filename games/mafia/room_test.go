package mafia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		code := NewRoomCode()
		require.True(t, ValidCode(code), "generated code %q", code)
		seen[code] = true
	}
	// 32^4 codes; 100 draws colliding down to a handful would mean the
	// generator is broken, not unlucky.
	assert.Greater(t, len(seen), 90)
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("ABCD"))
	assert.True(t, ValidCode("W234"))

	assert.False(t, ValidCode(""))
	assert.False(t, ValidCode("ABC"))
	assert.False(t, ValidCode("ABCDE"))
	assert.False(t, ValidCode("abcd"), "codes are uppercase")
	assert.False(t, ValidCode("AB0D"), "0 is excluded as ambiguous")
	assert.False(t, ValidCode("ABID"), "I is excluded as ambiguous")
}

func TestNewPlayerIDUnique(t *testing.T) {
	seen := make(map[PlayerID]bool)
	for range 1000 {
		id := NewPlayerID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestAllReady(t *testing.T) {
	players := map[PlayerID]Player{
		"a": {Name: "ann", Ready: true},
		"b": {Name: "bob", Ready: true},
		"c": {Name: "cat"},
	}
	assert.False(t, AllReady(players))

	// Flipping the last holdout flips the aggregate.
	p := players["c"]
	p.Ready = true
	players["c"] = p
	assert.True(t, AllReady(players))

	assert.True(t, AllReady(nil), "vacuously true for no players")
}

func TestMaxMafia(t *testing.T) {
	// Small tables are still allowed up to 3 mafia; larger tables cap at
	// half the players.
	assert.Equal(t, 3, MaxMafia(3))
	assert.Equal(t, 3, MaxMafia(6))
	assert.Equal(t, 4, MaxMafia(8))
	assert.Equal(t, 5, MaxMafia(11))
}

func TestPreview(t *testing.T) {
	p := Preview(7, Settings{MafiaCount: 2, IncludeDoctor: true, IncludeDetective: true})
	assert.Equal(t, RolePreview{Mafia: 2, Civilians: 3, Doctor: true, Detective: true}, p)

	// Transiently over-provisioned settings never preview negative civilians.
	p = Preview(2, Settings{MafiaCount: 3, IncludeDoctor: true})
	assert.Zero(t, p.Civilians)
}

func TestRoomClone(t *testing.T) {
	role := RoleMafia
	room := &Room{
		Code:    "ABCD",
		HostID:  "h",
		Players: map[PlayerID]Player{"h": {Name: "host", IsHost: true, Role: &role}},
		Version: 3,
	}

	clone := room.Clone()
	require.Equal(t, room, clone)

	p := clone.Players["h"]
	*p.Role = RoleCivilian
	p.Name = "changed"
	clone.Players["h"] = p

	assert.Equal(t, "host", room.Players["h"].Name)
	assert.Equal(t, RoleMafia, *room.Players["h"].Role)
}
