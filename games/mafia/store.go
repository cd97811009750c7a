package mafia

import "context"

// RoomUpdate merges top-level fields into a stored room. Nil fields are left
// untouched. The merge is document-level: a non-nil Players replaces the
// whole player map, never individual entries, which is why updates carry the
// version they were computed from.
type RoomUpdate struct {
	Settings    *Settings
	Players     map[PlayerID]Player
	GameStarted *bool
	AllReady    *bool
}

// Store is the external record service backing room state. Implementations
// provide last-writer-wins document storage with a subscribe-for-changes
// primitive; this package only relies on the contract below.
//
// Update takes the version of the record the caller read. If the record has
// been committed since, Update fails with ErrVersionConflict and the caller
// re-reads and retries, so concurrent read-modify-write cycles (two joins
// landing at once, a ready racing a leave) cannot silently clobber each
// other's player entries.
type Store interface {
	// Create commits a new record, failing with ErrRoomExists if the code
	// is already taken.
	Create(ctx context.Context, room *Room) error

	// Get returns a snapshot of the record, or ErrRoomNotFound.
	Get(ctx context.Context, code string) (*Room, error)

	// Update merges u into the record if its version still equals version.
	// Fails with ErrRoomNotFound if the room vanished concurrently, or
	// ErrVersionConflict if it was committed in between.
	Update(ctx context.Context, code string, version uint64, u RoomUpdate) error

	// Delete removes the record. Deleting an absent room is not an error.
	Delete(ctx context.Context, code string) error

	// Subscribe registers for change notifications on one room. onChange is
	// called with a snapshot after every commit, at least once per commit
	// and starting with the current state; onDelete is called once when the
	// record is removed. Callbacks arrive on a dedicated goroutine, in
	// commit order. The returned function stops delivery and is safe to
	// call more than once.
	Subscribe(ctx context.Context, code string, onChange func(*Room), onDelete func()) (func(), error)
}
