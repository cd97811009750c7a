package mafia

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIDs(n int) []PlayerID {
	ids := make([]PlayerID, n)
	for i := range ids {
		ids[i] = PlayerID(fmt.Sprintf("player_%03d", i))
	}
	return ids
}

func countRoles(dealt map[PlayerID]Role) map[Role]int {
	counts := make(map[Role]int)
	for _, role := range dealt {
		counts[role]++
	}
	return counts
}

func TestDealCoversEveryPlayerOnce(t *testing.T) {
	ids := testIDs(7)
	dealt := Deal(ids, Settings{MafiaCount: 2, IncludeDoctor: true, IncludeDetective: true})

	require.Len(t, dealt, 7)
	for _, id := range ids {
		_, ok := dealt[id]
		assert.True(t, ok, "player %s missing a role", id)
	}
}

func TestDealMultiset(t *testing.T) {
	// 5 players, 2 mafia, both specials: {mafia, mafia, doctor, detective, civilian}
	dealt := Deal(testIDs(5), Settings{MafiaCount: 2, IncludeDoctor: true, IncludeDetective: true})

	counts := countRoles(dealt)
	assert.Equal(t, 2, counts[RoleMafia])
	assert.Equal(t, 1, counts[RoleDoctor])
	assert.Equal(t, 1, counts[RoleDetective])
	assert.Equal(t, 1, counts[RoleCivilian])
}

func TestDealThreePlayersOneMafiaDoctor(t *testing.T) {
	dealt := Deal(testIDs(3), Settings{MafiaCount: 1, IncludeDoctor: true})

	counts := countRoles(dealt)
	assert.Equal(t, 1, counts[RoleMafia])
	assert.Equal(t, 1, counts[RoleDoctor])
	assert.Equal(t, 1, counts[RoleCivilian])
	assert.Zero(t, counts[RoleDetective])
}

func TestDealDropsSpecialsWhenFull(t *testing.T) {
	// The mafia fill the whole table, so the specials are silently dropped.
	dealt := Deal(testIDs(3), Settings{MafiaCount: 3, IncludeDoctor: true, IncludeDetective: true})

	counts := countRoles(dealt)
	assert.Equal(t, 3, counts[RoleMafia])
	assert.Zero(t, counts[RoleDoctor])
	assert.Zero(t, counts[RoleDetective])

	// One seat left: the doctor takes it, the detective is dropped.
	dealt = Deal(testIDs(3), Settings{MafiaCount: 2, IncludeDoctor: true, IncludeDetective: true})

	counts = countRoles(dealt)
	assert.Equal(t, 2, counts[RoleMafia])
	assert.Equal(t, 1, counts[RoleDoctor])
	assert.Zero(t, counts[RoleDetective])
	assert.Zero(t, counts[RoleCivilian])
}

func TestDealFairness(t *testing.T) {
	// Each of 5 players should draw mafia with probability 2/5, regardless
	// of their position in the id order.
	const trials = 5000

	ids := testIDs(5)
	settings := Settings{MafiaCount: 2}

	mafiaDraws := make(map[PlayerID]int)
	for range trials {
		for id, role := range Deal(ids, settings) {
			if role == RoleMafia {
				mafiaDraws[id]++
			}
		}
	}

	for _, id := range ids {
		p := float64(mafiaDraws[id]) / trials
		assert.InDelta(t, 0.4, p, 0.05, "player %s drew mafia with probability %.3f", id, p)
	}
}
