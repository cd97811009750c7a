package mafia

import (
	"math/rand/v2"
	"slices"
)

// Deal assigns a role to every player exactly once: mafiaCount mafia, then
// one doctor and one detective if enabled and seats remain, civilians for the
// rest. When the mafia already fill the table, the optional roles are dropped
// silently rather than erroring; the game degrades to fewer specials.
//
// The role pile is shuffled with a uniform Fisher-Yates permutation and dealt
// over a sorted enumeration of the ids, so the result is independent of map
// iteration order. Called once per game, at start.
func Deal(ids []PlayerID, s Settings) map[PlayerID]Role {
	seats := len(ids)

	roles := make([]Role, 0, seats)
	for i := 0; i < s.MafiaCount && len(roles) < seats; i++ {
		roles = append(roles, RoleMafia)
	}
	if s.IncludeDoctor && len(roles) < seats {
		roles = append(roles, RoleDoctor)
	}
	if s.IncludeDetective && len(roles) < seats {
		roles = append(roles, RoleDetective)
	}
	for len(roles) < seats {
		roles = append(roles, RoleCivilian)
	}

	rand.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})

	order := slices.Clone(ids)
	slices.Sort(order)

	dealt := make(map[PlayerID]Role, seats)
	for i, id := range order {
		dealt[id] = roles[i]
	}
	return dealt
}
