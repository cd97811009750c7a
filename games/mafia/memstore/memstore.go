// Package memstore is the in-memory implementation of the mafia room store.
// It backs a single-process deployment and the test suites; swapping in a
// hosted realtime backend only requires another mafia.Store implementation.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/Seednode/mafiaparty/games/mafia"
)

// Watcher channels buffer this many snapshots before a subscriber is
// considered stuck and dropped.
const watcherBuffer = 16

type watcher struct {
	// ch carries room snapshots; nil signals deletion. Closed exactly once,
	// under the store mutex.
	ch     chan *mafia.Room
	closed bool
}

type entry struct {
	room       *mafia.Room
	lastActive time.Time
	watchers   map[int]*watcher
}

// Store holds room records in memory, keyed by room code.
type Store struct {
	mu          sync.Mutex
	rooms       map[string]*entry
	nextWatcher int
	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

// New returns an empty store. If idleTimeout is positive, rooms with no
// commits for that long are reaped as if deleted.
func New(idleTimeout time.Duration) *Store {
	s := &Store{
		rooms:       make(map[string]*entry),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go s.reaperLoop()
	}
	return s
}

// Close stops the reaper and ends every subscription.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.rooms {
		dropWatchersLocked(e)
	}
	s.rooms = make(map[string]*entry)
}

func (s *Store) Create(ctx context.Context, room *mafia.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.Code]; ok {
		return mafia.ErrRoomExists
	}

	stored := room.Clone()
	stored.Version = 1
	s.rooms[room.Code] = &entry{
		room:       stored,
		lastActive: time.Now(),
		watchers:   make(map[int]*watcher),
	}
	room.Version = stored.Version

	return nil
}

func (s *Store) Get(ctx context.Context, code string) (*mafia.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[code]
	if !ok {
		return nil, mafia.ErrRoomNotFound
	}
	return e.room.Clone(), nil
}

func (s *Store) Update(ctx context.Context, code string, version uint64, u mafia.RoomUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[code]
	if !ok {
		return mafia.ErrRoomNotFound
	}
	if e.room.Version != version {
		return mafia.ErrVersionConflict
	}

	next := e.room.Clone()
	if u.Settings != nil {
		next.Settings = *u.Settings
	}
	if u.Players != nil {
		next.Players = (&mafia.Room{Players: u.Players}).Clone().Players
	}
	if u.GameStarted != nil {
		next.GameStarted = *u.GameStarted
	}
	if u.AllReady != nil {
		next.AllReady = *u.AllReady
	}
	next.Version = version + 1

	e.room = next
	e.lastActive = time.Now()
	s.notifyLocked(e)

	return nil
}

func (s *Store) Delete(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(code)
	return nil
}

func (s *Store) deleteLocked(code string) {
	e, ok := s.rooms[code]
	if !ok {
		return
	}
	delete(s.rooms, code)

	for id, w := range e.watchers {
		if !w.closed {
			// Deletion is the final notification; the nil sentinel must
			// land even if the buffer is full, so stale snapshots are
			// discarded until it fits. The watcher goroutine is the only
			// other reader, and it never stops draining.
			for sent := false; !sent; {
				select {
				case w.ch <- nil:
					sent = true
				default:
					select {
					case <-w.ch:
					default:
					}
				}
			}
			w.closed = true
			close(w.ch)
		}
		delete(e.watchers, id)
	}
}

func (s *Store) Subscribe(ctx context.Context, code string, onChange func(*mafia.Room), onDelete func()) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()

	e, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return nil, mafia.ErrRoomNotFound
	}

	w := &watcher{ch: make(chan *mafia.Room, watcherBuffer)}
	id := s.nextWatcher
	s.nextWatcher++
	e.watchers[id] = w

	// Prime the subscriber with the current state.
	w.ch <- e.room.Clone()

	s.mu.Unlock()

	go func() {
		for room := range w.ch {
			if room == nil {
				onDelete()
				return
			}
			onChange(room)
		}
	}()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if !w.closed {
			w.closed = true
			close(w.ch)
		}
		if e, ok := s.rooms[code]; ok {
			delete(e.watchers, id)
		}
	}

	return unsubscribe, nil
}

// notifyLocked fans the committed snapshot out to every watcher. Subscribers
// that stopped draining are dropped, same as slow clients elsewhere.
func (s *Store) notifyLocked(e *entry) {
	for id, w := range e.watchers {
		if w.closed {
			delete(e.watchers, id)
			continue
		}
		select {
		case w.ch <- e.room.Clone():
		default:
			w.closed = true
			close(w.ch)
			delete(e.watchers, id)
		}
	}
}

func dropWatchersLocked(e *entry) {
	for id, w := range e.watchers {
		if !w.closed {
			w.closed = true
			close(w.ch)
		}
		delete(e.watchers, id)
	}
}

// reaperLoop periodically removes rooms that have seen no commits longer
// than idleTimeout, notifying their subscribers as a deletion.
func (s *Store) reaperLoop() {
	ticker := time.NewTicker(s.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.idleTimeout)

			s.mu.Lock()
			for code, e := range s.rooms {
				if e.lastActive.Before(cutoff) {
					s.deleteLocked(code)
				}
			}
			s.mu.Unlock()
		}
	}
}
