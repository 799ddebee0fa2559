package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/jaminalder/cubic-tic-tac-toe/internal/domain"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/store"
)

// Errors exposed by the service layer.
var (
	ErrNotFound    = errors.New("game not found")
	ErrNotYourTurn = errors.New("not your turn")
	ErrNotAPlayer  = errors.New("not a player")
)

// Options describe the shape of a new game. Zero fields take the service defaults.
type Options struct {
	Size      int
	WinLength int
	AI        domain.Claim
	Mode      domain.LineMode
}

// GameState is the in-memory state tracked per game.
type GameState struct {
	ID      string
	Game    domain.Game
	A       string
	B       string
	Last    domain.Outcome
	Created time.Time
	Updated time.Time
}

// Seat returns the seat held by playerID, Unclaimed for spectators.
func (gs GameState) Seat(playerID string) domain.Claim {
	switch {
	case playerID == "":
		return domain.Unclaimed
	case gs.A == playerID:
		return domain.PlayerA
	case gs.B == playerID:
		return domain.PlayerB
	default:
		return domain.Unclaimed
	}
}

func (gs *GameState) snapshot() GameState {
	cp := *gs
	cp.Game = gs.Game.Clone()
	return cp
}

// ResultRecorder persists finished games.
type ResultRecorder interface {
	RecordResult(ctx context.Context, r store.Result) error
}

type subscriber struct {
	ch        chan []byte
	closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

type lineKey struct {
	n, m int
	mode domain.LineMode
}

// DefaultMaxSize caps the lattice edge of games when Config.MaxSize is zero.
const DefaultMaxSize = 9

// Config wires a Service.
type Config struct {
	Defaults  Options
	// MaxSize is the largest lattice edge a game may be created or configured with.
	MaxSize   int
	LineCache int
	Recorder  ResultRecorder
	Logger    *zap.Logger
	Renderer  func(GameState) []byte
}

// Service manages games and subscribers.
type Service struct {
	mu       sync.Mutex
	games    map[string]*GameState
	subs     map[string]map[*subscriber]struct{}
	render   func(GameState) []byte
	defaults Options
	maxSize  int
	lines    *lru.Cache[lineKey, *domain.LineSet]
	recorder ResultRecorder
	log      *zap.Logger
}

// New creates a service from cfg.
func New(cfg Config) (*Service, error) {
	if cfg.Defaults.Size == 0 {
		cfg.Defaults.Size = 3
	}
	if cfg.Defaults.WinLength == 0 {
		cfg.Defaults.WinLength = cfg.Defaults.Size
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.MaxSize < 3 || cfg.MaxSize > domain.MaxSize {
		return nil, fmt.Errorf("%w: max size %d must be in [3, %d]", domain.ErrInvalidConfig, cfg.MaxSize, domain.MaxSize)
	}
	if cfg.LineCache < 1 {
		cfg.LineCache = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = func(gs GameState) []byte { return nil }
	}
	cache, err := lru.New[lineKey, *domain.LineSet](cfg.LineCache)
	if err != nil {
		return nil, fmt.Errorf("line cache: %w", err)
	}
	s := &Service{
		games:    make(map[string]*GameState),
		subs:     make(map[string]map[*subscriber]struct{}),
		render:   cfg.Renderer,
		defaults: cfg.Defaults,
		maxSize:  cfg.MaxSize,
		lines:    cache,
		recorder: cfg.Recorder,
		log:      cfg.Logger,
	}
	// fail early on a bad default shape rather than on the first CreateGame
	if _, err := s.lineSet(s.defaults.Size, s.defaults.WinLength, s.defaults.Mode); err != nil {
		return nil, err
	}
	return s, nil
}

// NewService creates a service with 3×3×3 defaults and a renderer that encodes nothing.
func NewService() *Service { return NewServiceWithRenderer(nil) }

// NewServiceWithRenderer allows injecting a renderer for broadcast payloads.
func NewServiceWithRenderer(renderer func(GameState) []byte) *Service {
	s, err := New(Config{Renderer: renderer})
	if err != nil {
		panic(err) // the built-in defaults are valid
	}
	return s
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(GameState) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		s.render = func(gs GameState) []byte { return nil }
		return
	}
	s.render = renderer
}

// Defaults returns the options used for zero fields in CreateGame.
func (s *Service) Defaults() Options { return s.defaults }

// MaxSize returns the largest lattice edge the service accepts.
func (s *Service) MaxSize() int { return s.maxSize }

// lineSet returns the shared combinations for a shape, generating them on a cache miss.
// The size cap is checked before anything is allocated.
func (s *Service) lineSet(n, m int, mode domain.LineMode) (*domain.LineSet, error) {
	if n > s.maxSize {
		return nil, fmt.Errorf("%w: size %d exceeds the limit of %d", domain.ErrInvalidConfig, n, s.maxSize)
	}
	k := lineKey{n, m, mode}
	if ls, ok := s.lines.Get(k); ok {
		return ls, nil
	}
	ls, err := domain.NewLineSet(n, m, mode)
	if err != nil {
		return nil, err
	}
	s.lines.Add(k, ls)
	s.log.Debug("generated win lines",
		zap.Int("size", n), zap.Int("winLength", m),
		zap.Stringer("mode", mode), zap.Int("lines", len(ls.Lines)))
	return ls, nil
}

func (s *Service) withDefaults(o Options) Options {
	if o.Size == 0 {
		o.Size = s.defaults.Size
		if o.WinLength == 0 {
			o.WinLength = s.defaults.WinLength
		}
	}
	if o.WinLength == 0 {
		o.WinLength = o.Size
	}
	return o
}

func (s *Service) newGameLocked(id string, o Options) (*GameState, error) {
	o = s.withDefaults(o)
	ls, err := s.lineSet(o.Size, o.WinLength, o.Mode)
	if err != nil {
		return nil, err
	}
	g := domain.New()
	g.AI = o.AI
	g.ConfigureLines(ls)
	now := time.Now()
	gs := &GameState{ID: id, Game: g, Created: now, Updated: now}
	s.games[id] = gs
	return gs, nil
}

// CreateGame creates and registers a new game.
func (s *Service) CreateGame(o Options) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, err := s.newGameLocked(newGameID(), o)
	if err != nil {
		return nil, err
	}
	s.log.Info("game created", zap.String("game", gs.ID),
		zap.Int("size", gs.Game.Lines.N), zap.Int("winLength", gs.Game.Lines.M),
		zap.Stringer("ai", gs.Game.AI))
	cp := gs.snapshot()
	return &cp, nil
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (*GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.games[id]
	if !ok {
		return nil, false
	}
	cp := gs.snapshot()
	return &cp, true
}

// Join assigns a seat to the player if available; returns Unclaimed for spectators. The
// AI's seat is never handed out.
func (s *Service) Join(id, playerID string) (domain.Claim, *GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.games[id]
	if !ok {
		return domain.Unclaimed, nil, ErrNotFound
	}
	side := gs.Seat(playerID)
	if side == domain.Unclaimed && playerID != "" {
		if gs.A == "" && gs.Game.AI != domain.PlayerA {
			gs.A = playerID
			side = domain.PlayerA
		} else if gs.B == "" && gs.Game.AI != domain.PlayerB {
			gs.B = playerID
			side = domain.PlayerB
		}
	}
	gs.Updated = time.Now()
	cp := gs.snapshot()
	return side, &cp, nil
}

// Play validates seat and turn, applies a move, records finished games and broadcasts.
func (s *Service) Play(id, playerID string, point int) (*GameState, error) {
	return s.mutate(id, func(gs *GameState) error {
		seat := gs.Seat(playerID)
		if seat == domain.Unclaimed {
			return ErrNotAPlayer
		}
		if seat != gs.Game.Turn {
			return ErrNotYourTurn
		}
		out, err := gs.Game.ApplyMove(point, seat)
		if err != nil {
			return err
		}
		gs.Last = out
		return nil
	})
}

// Configure changes the lattice size and win length of a game, starting it afresh. On error
// the previous configuration is kept.
func (s *Service) Configure(id string, n, m int) (*GameState, error) {
	return s.mutate(id, func(gs *GameState) error {
		ls, err := s.lineSet(n, m, gs.Game.Mode)
		if err != nil {
			return err
		}
		gs.Game.ConfigureLines(ls)
		gs.Last = domain.Outcome{Moves: gs.Game.History}
		return nil
	})
}

// Reset clears the board and hands the first move to first.
func (s *Service) Reset(id string, first domain.Claim) (*GameState, error) {
	return s.mutate(id, func(gs *GameState) error {
		gs.Last = domain.Outcome{Opening: gs.Game.Reset(first)}
		return nil
	})
}

// SetAI gives seat c to the computer (Unclaimed to play human against human). A human
// sitting in that seat becomes a spectator.
func (s *Service) SetAI(id string, c domain.Claim) (*GameState, error) {
	return s.mutate(id, func(gs *GameState) error {
		switch c {
		case domain.PlayerA:
			gs.A = ""
		case domain.PlayerB:
			gs.B = ""
		}
		gs.Last = gs.Game.SetAI(c)
		return nil
	})
}

// mutate runs fn on the game under the lock and broadcasts the new state, then records a
// finished game outside the lock.
func (s *Service) mutate(id string, fn func(gs *GameState) error) (*GameState, error) {
	s.mu.Lock()
	gs, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if err := fn(gs); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	gs.Updated = time.Now()
	cp := gs.snapshot()
	s.fanOutLocked(id, s.render(cp))
	s.mu.Unlock()

	s.record(cp)
	return &cp, nil
}

func (s *Service) record(gs GameState) {
	out := gs.Last
	if out.Status == domain.Ongoing {
		return
	}
	s.log.Info("game finished", zap.String("game", gs.ID),
		zap.Stringer("status", out.Status), zap.Stringer("winner", out.Winner))
	if s.recorder == nil {
		return
	}
	moves := 0
	for _, c := range out.Final {
		if c != domain.Unclaimed {
			moves++
		}
	}
	r := store.Result{
		GameID:    gs.ID,
		Size:      gs.Game.Lines.N,
		WinLength: gs.Game.Lines.M,
		Mode:      gs.Game.Mode.String(),
		Winner:    out.Winner.String(),
		Moves:     moves,
		Line:      out.Line,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.RecordResult(ctx, r); err != nil {
		s.log.Error("failed to record result", zap.String("game", gs.ID), zap.Error(err))
	}
}

// fanOutLocked delivers payload without blocking; slow subscribers are closed and dropped.
// Sends and closes both happen under s.mu so a send never hits a closed channel.
func (s *Service) fanOutLocked(id string, payload []byte) {
	set := s.subs[id]
	dropped := 0
	for sub := range set {
		select {
		case sub.ch <- payload:
		default:
			sub.close()
			delete(set, sub)
			dropped++
		}
	}
	if dropped > 0 {
		s.log.Debug("dropped slow subscribers", zap.String("game", id), zap.Int("count", dropped))
	}
}

// Subscribe registers a subscriber for an existing game. Returns a channel and an
// unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return nil, nil, ErrNotFound
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan []byte, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(s.subs, id)
				}
			}
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub, nil
}
