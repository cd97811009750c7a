package mafia

import "fmt"

// Role is one of the four dealt roles. The set is closed: values outside
// this enumeration only exist if a record was corrupted externally, and
// lookups on them fail with ErrUnknownRole.
type Role int

const (
	RoleMafia Role = iota
	RoleCivilian
	RoleDoctor
	RoleDetective
)

// Team is a role's win-condition affiliation.
type Team string

const (
	TeamMafia Team = "Mafia"
	TeamTown  Team = "Town"
)

// RoleInfo is the static display metadata for a role.
type RoleInfo struct {
	Name        string `json:"name"`
	Team        Team   `json:"team"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Class       string `json:"class"`
}

var roleTable = [...]RoleInfo{
	RoleMafia: {
		Name:        "Mafia",
		Team:        TeamMafia,
		Icon:        "🔪",
		Description: "Eliminate civilians at night. Work with your fellow mafia to take over the town.",
		Class:       "mafia",
	},
	RoleCivilian: {
		Name:        "Civilian",
		Team:        TeamTown,
		Icon:        "👤",
		Description: "Find and eliminate the mafia during the day. Stay alive and vote wisely!",
		Class:       "civilian",
	},
	RoleDoctor: {
		Name:        "Doctor",
		Team:        TeamTown,
		Icon:        "💊",
		Description: "Each night, choose one player to protect from the mafia. You can save lives!",
		Class:       "doctor",
	},
	RoleDetective: {
		Name:        "Detective",
		Team:        TeamTown,
		Icon:        "🔍",
		Description: "Each night, investigate one player to learn if they are mafia or innocent.",
		Class:       "detective",
	},
}

func (r Role) valid() bool {
	return r >= RoleMafia && r <= RoleDetective
}

// Info returns the display metadata for r.
func (r Role) Info() (RoleInfo, error) {
	if !r.valid() {
		return RoleInfo{}, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
	}
	return roleTable[r], nil
}

func (r Role) String() string {
	switch r {
	case RoleMafia:
		return "mafia"
	case RoleCivilian:
		return "civilian"
	case RoleDoctor:
		return "doctor"
	case RoleDetective:
		return "detective"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MarshalText stores roles under their lowercase wire names.
func (r Role) MarshalText() ([]byte, error) {
	if !r.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "mafia":
		*r = RoleMafia
	case "civilian":
		*r = RoleCivilian
	case "doctor":
		*r = RoleDoctor
	case "detective":
		*r = RoleDetective
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, text)
	}
	return nil
}
