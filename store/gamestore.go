package store

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/minaorangina/uno/game"
	"go.uber.org/zap"
)

var (
	ErrEmptyGameID = errors.New("game ID must not be empty")
)

// GameStore is the registry of live games and of which game each
// connection has joined
type GameStore interface {
	Get(gameID string) (*game.Game, error)
	Find(gameID string) (*game.Game, bool)
	Remove(gameID string)
	RemoveGame(g *game.Game) bool
	Bind(connID, gameID string)
	Lookup(connID string) (string, bool)
	Disconnect(connID string) (*game.Game, bool)
	Sweep(now time.Time, idle time.Duration) []string
	Len() int
	Snapshot() []string
}

type StoreOpts struct {
	Capacity int
	// NewGame overrides how a game is constructed on first join
	NewGame func(gameID string) (*game.Game, error)
	Now     func() time.Time
	Logger  *zap.Logger
}

// InMemoryGameStore maps game id to game and connection id to game id.
// All methods are safe for concurrent use.
//
// The store lock is never held while a game is locked, so callers holding
// a game's lock may call back into the store.
type InMemoryGameStore struct {
	mu    sync.RWMutex
	games map[string]*game.Game
	conns map[string]string // connID → gameID

	newGame func(gameID string) (*game.Game, error)
	seeds   *rand.Rand
	logger  *zap.Logger
}

// NewInMemoryGameStore constructs an InMemoryGameStore
func NewInMemoryGameStore(opts StoreOpts) (*InMemoryGameStore, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &InMemoryGameStore{
		games:   map[string]*game.Game{},
		conns:   map[string]string{},
		newGame: opts.NewGame,
		seeds:   rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  opts.Logger,
	}

	if s.newGame == nil {
		if err := game.ValidateCapacity(opts.Capacity); err != nil {
			return nil, err
		}
		s.newGame = func(gameID string) (*game.Game, error) {
			// seeds is only used under the write lock
			return game.NewGame(game.GameOpts{
				ID:       gameID,
				Capacity: opts.Capacity,
				Rand:     rand.New(rand.NewSource(s.seeds.Int63())),
				Now:      opts.Now,
			})
		}
	}

	return s, nil
}

// Get returns the game with the given id, creating it if there isn't one
func (s *InMemoryGameStore) Get(gameID string) (*game.Game, error) {
	if gameID == "" {
		return nil, ErrEmptyGameID
	}

	if g, ok := s.Find(gameID); ok {
		return g, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// someone may have beaten us to it
	if g, ok := s.games[gameID]; ok {
		return g, nil
	}

	g, err := s.newGame(gameID)
	if err != nil {
		return nil, err
	}
	s.games[gameID] = g
	s.logger.Debug("game created", zap.String("game_id", gameID))

	return g, nil
}

func (s *InMemoryGameStore) Find(gameID string) (*game.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[gameID]
	return g, ok
}

// Remove forgets a game and every connection bound to it
func (s *InMemoryGameStore) Remove(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(gameID)
}

// RemoveGame removes g only if its id still refers to it, so a stale
// handle can't remove a newer game that reused the id.
func (s *InMemoryGameStore) RemoveGame(g *game.Game) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.games[g.ID()]; !ok || current != g {
		return false
	}
	s.removeLocked(g.ID())
	return true
}

func (s *InMemoryGameStore) removeLocked(gameID string) {
	if _, ok := s.games[gameID]; !ok {
		return
	}
	delete(s.games, gameID)
	for connID, id := range s.conns {
		if id == gameID {
			delete(s.conns, connID)
		}
	}
	s.logger.Debug("game removed", zap.String("game_id", gameID))
}

// Bind records that connID has joined gameID, replacing any earlier binding
func (s *InMemoryGameStore) Bind(connID, gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[connID] = gameID
}

func (s *InMemoryGameStore) Lookup(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gameID, ok := s.conns[connID]
	return gameID, ok
}

// Disconnect drops the binding for connID and returns the game it was
// bound to, if that game is still live
func (s *InMemoryGameStore) Disconnect(connID string) (*game.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gameID, ok := s.conns[connID]
	if !ok {
		return nil, false
	}
	delete(s.conns, connID)

	g, ok := s.games[gameID]
	return g, ok
}

// Sweep closes and removes games that nobody is connected to and that have
// been idle for at least idle. It returns the ids it removed.
func (s *InMemoryGameStore) Sweep(now time.Time, idle time.Duration) []string {
	s.mu.RLock()
	candidates := make([]*game.Game, 0, len(s.games))
	for _, g := range s.games {
		candidates = append(candidates, g)
	}
	s.mu.RUnlock()

	removed := []string{}
	for _, g := range candidates {
		g.Lock()
		stale := !g.Closed() && g.IsEmpty() && now.Sub(g.LastActive()) >= idle
		if stale {
			g.Close()
		}
		g.Unlock()

		if stale && s.RemoveGame(g) {
			removed = append(removed, g.ID())
		}
	}

	if len(removed) > 0 {
		sort.Strings(removed)
		s.logger.Info("swept idle games", zap.Strings("game_ids", removed))
	}
	return removed
}

func (s *InMemoryGameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.games)
}

// Snapshot returns the ids of every live game in order
func (s *InMemoryGameStore) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
