package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jaminalder/cubic-tic-tac-toe/internal/domain"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/store"
)

// minimal renderer for tests: encode moves count as bytes
func testRenderer(gs GameState) []byte { return []byte(fmt.Sprintf("moves=%d", gs.Game.Moves)) }

type memRecorder struct {
	mu      sync.Mutex
	results []store.Result
	err     error
}

func (m *memRecorder) RecordResult(ctx context.Context, r store.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return m.err
}

func (m *memRecorder) all() []store.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Result(nil), m.results...)
}

func seated(t *testing.T, s *Service, o Options) *GameState {
	t.Helper()
	gs, err := s.CreateGame(o)
	if err != nil {
		t.Fatalf("CreateGame error: %v", err)
	}
	s.Join(gs.ID, "p1")
	s.Join(gs.ID, "p2")
	return gs
}

func TestCreateAndGet(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs, err := s.CreateGame(Options{})
	if err != nil {
		t.Fatalf("CreateGame error: %v", err)
	}
	if gs.ID == "" {
		t.Fatalf("expected non-empty game ID")
	}
	if gs.Game.Turn != domain.PlayerA {
		t.Fatalf("expected initial turn A")
	}
	if len(gs.Game.Points) != 27 || gs.Game.Lines.M != 3 {
		t.Fatalf("expected default 3x3x3 game with win length 3")
	}
	if gs.Created.IsZero() || gs.Updated.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}
	got, ok := s.Get(gs.ID)
	if !ok || got.ID != gs.ID {
		t.Fatalf("Get should find created game")
	}
}

func TestCreateWithShape(t *testing.T) {
	s := NewService()
	gs, err := s.CreateGame(Options{Size: 5, WinLength: 4})
	if err != nil {
		t.Fatalf("CreateGame error: %v", err)
	}
	if len(gs.Game.Points) != 125 || gs.Game.Lines.M != 4 {
		t.Fatalf("unexpected shape: %d points, win length %d", len(gs.Game.Points), gs.Game.Lines.M)
	}
	if _, err := s.CreateGame(Options{Size: 3, WinLength: 4}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestGamesShareLineSets(t *testing.T) {
	s := NewService()
	a, _ := s.CreateGame(Options{Size: 4})
	b, _ := s.CreateGame(Options{Size: 4})
	if a.Game.Lines != b.Game.Lines {
		t.Fatalf("expected games of the same shape to share one line set")
	}
	c, _ := s.CreateGame(Options{Size: 4, Mode: domain.Exhaustive, WinLength: 3})
	if c.Game.Lines == a.Game.Lines || c.Game.Lines.Mode != domain.Exhaustive {
		t.Fatalf("expected a separate exhaustive line set")
	}
}

func TestNewRejectsBadDefaults(t *testing.T) {
	if _, err := New(Config{Defaults: Options{Size: 2}}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestJoinSeatsAndRejoin(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs, _ := s.CreateGame(Options{})
	p1, p2, p3 := "p1", "p2", "p3"

	side, _, err := s.Join(gs.ID, p1)
	if err != nil || side != domain.PlayerA {
		t.Fatalf("p1 should claim A, got %v, err=%v", side, err)
	}
	side, _, err = s.Join(gs.ID, p2)
	if err != nil || side != domain.PlayerB {
		t.Fatalf("p2 should claim B, got %v, err=%v", side, err)
	}
	side, _, err = s.Join(gs.ID, p1)
	if err != nil || side != domain.PlayerA {
		t.Fatalf("p1 rejoin should keep A, got %v, err=%v", side, err)
	}
	side, _, err = s.Join(gs.ID, p3)
	if err != nil || side != domain.Unclaimed {
		t.Fatalf("p3 should spectate, got %v, err=%v", side, err)
	}
	if _, _, err := s.Join("missing", p1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJoinSkipsAISeat(t *testing.T) {
	s := NewService()
	gs, _ := s.CreateGame(Options{AI: domain.PlayerA})
	if gs.Game.Points[13] != domain.PlayerA || gs.Game.Turn != domain.PlayerB {
		t.Fatalf("expected AI to open at the center")
	}
	side, _, _ := s.Join(gs.ID, "p1")
	if side != domain.PlayerB {
		t.Fatalf("expected human to get B, got %v", side)
	}
	side, _, _ = s.Join(gs.ID, "p2")
	if side != domain.Unclaimed {
		t.Fatalf("expected second human to spectate, got %v", side)
	}
}

func TestPlayEnforcesTurnAndSpectatorBlocked(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs := seated(t, s, Options{})
	s.Join(gs.ID, "p3") // spectator

	// B cannot play first
	if _, err := s.Play(gs.ID, "p2", 0); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	// spectator cannot play
	if _, err := s.Play(gs.ID, "p3", 0); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("expected ErrNotAPlayer, got %v", err)
	}
	// A plays
	st, err := s.Play(gs.ID, "p1", 0)
	if err != nil {
		t.Fatalf("A play failed: %v", err)
	}
	if st.Game.Points[0] != domain.PlayerA || st.Game.Turn != domain.PlayerB || st.Game.Moves != 1 {
		t.Fatalf("unexpected state after A move: turn=%v moves=%d", st.Game.Turn, st.Game.Moves)
	}
	// A cannot play again
	if _, err := s.Play(gs.ID, "p1", 1); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn for A again, got %v", err)
	}
	// B cannot take a claimed point
	if _, err := s.Play(gs.ID, "p2", 0); !errors.Is(err, domain.ErrOccupied) {
		t.Fatalf("expected ErrOccupied, got %v", err)
	}
	if _, err := s.Play("missing", "p1", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	s := NewService()
	gs := seated(t, s, Options{})
	snap, _ := s.Get(gs.ID)
	if _, err := s.Play(gs.ID, "p1", 4); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if snap.Game.Points[4] != domain.Unclaimed {
		t.Fatalf("snapshot changed after a later move")
	}
}

func TestWinIsRecordedAndLoserStarts(t *testing.T) {
	rec := &memRecorder{}
	s, err := New(Config{Recorder: rec})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gs := seated(t, s, Options{})
	moves := []struct {
		who   string
		point int
	}{{"p1", 0}, {"p2", 1}, {"p1", 3}, {"p2", 2}, {"p1", 6}}
	var st *GameState
	for _, m := range moves {
		if st, err = s.Play(gs.ID, m.who, m.point); err != nil {
			t.Fatalf("play %v failed: %v", m, err)
		}
	}
	if st.Last.Status != domain.Won || st.Last.Winner != domain.PlayerA {
		t.Fatalf("expected A to win, got %v", st.Last.Status)
	}
	if st.Game.Turn != domain.PlayerB || st.Game.Moves != 0 {
		t.Fatalf("expected a fresh game with B to move")
	}
	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(got))
	}
	r := got[0]
	if r.GameID != gs.ID || r.Winner != "A" || r.Moves != 5 || r.Size != 3 || r.Mode != "windowed" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestRecorderFailureDoesNotFailMove(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	s, _ := New(Config{Recorder: rec})
	gs := seated(t, s, Options{})
	for i, p := range []int{0, 1, 3, 2, 6} {
		who := "p1"
		if i%2 == 1 {
			who = "p2"
		}
		if _, err := s.Play(gs.ID, who, p); err != nil {
			t.Fatalf("play failed: %v", err)
		}
	}
	if len(rec.all()) != 1 {
		t.Fatalf("expected the recorder to be called")
	}
}

func TestConfigureAndReset(t *testing.T) {
	s := NewService()
	gs := seated(t, s, Options{})
	s.Play(gs.ID, "p1", 0)

	st, err := s.Configure(gs.ID, 4, 3)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if len(st.Game.Points) != 64 || st.Game.Moves != 0 {
		t.Fatalf("expected a fresh 4x4x4 board")
	}
	if _, err := s.Configure(gs.ID, 4, 5); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if cur, _ := s.Get(gs.ID); len(cur.Game.Points) != 64 {
		t.Fatalf("expected previous configuration to survive")
	}

	s.Play(gs.ID, "p1", 5)
	st, err = s.Reset(gs.ID, domain.PlayerB)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if st.Game.Moves != 0 || st.Game.Turn != domain.PlayerB {
		t.Fatalf("expected cleared board with B to move")
	}
}

func TestSetAIUnseatsHumanAndMoves(t *testing.T) {
	s := NewService()
	gs := seated(t, s, Options{})
	st, err := s.SetAI(gs.ID, domain.PlayerA)
	if err != nil {
		t.Fatalf("SetAI: %v", err)
	}
	if st.A != "" || st.Game.AI != domain.PlayerA {
		t.Fatalf("expected seat A handed to the AI")
	}
	if st.Game.Points[13] != domain.PlayerA || st.Game.Turn != domain.PlayerB {
		t.Fatalf("expected AI to move at once")
	}
	st, err = s.Play(gs.ID, "p2", 0)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(st.Last.Moves) != 2 || st.Game.Turn != domain.PlayerB {
		t.Fatalf("expected AI reply, got %v", st.Last.Moves)
	}
}

func TestSubscribeAndBroadcast(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs := seated(t, s, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()
	ch, unsub, err := s.Subscribe(ctx, gs.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if _, err := s.Play(gs.ID, "p1", 0); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	select {
	case b, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed unexpectedly")
		}
		if string(b) != "moves=1" {
			t.Fatalf("unexpected broadcast payload: %q", string(b))
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for broadcast")
	}
}

func TestDropSlowSubscriber(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs := seated(t, s, Options{})

	// Slow subscriber: never read
	ctxSlow, cancelSlow := context.WithCancel(context.Background())
	defer cancelSlow()
	slowCh, _, _ := s.Subscribe(ctxSlow, gs.ID)

	ctxFast, cancelFast := context.WithTimeout(context.Background(), time.Second*2)
	defer cancelFast()
	fastCh, unsubFast, _ := s.Subscribe(ctxFast, gs.ID)
	defer unsubFast()

	if _, err := s.Play(gs.ID, "p1", 0); err != nil {
		t.Fatalf("play1: %v", err)
	}
	select {
	case <-fastCh:
	case <-ctxFast.Done():
		t.Fatalf("fast subscriber did not receive first update")
	}
	if _, err := s.Play(gs.ID, "p2", 13); err != nil {
		t.Fatalf("play2: %v", err)
	}
	select {
	case <-fastCh:
	case <-ctxFast.Done():
		t.Fatalf("fast subscriber did not receive second update")
	}

	// the slow subscriber kept its first payload and was closed on the second
	<-slowCh
	if _, ok := <-slowCh; ok {
		t.Fatalf("expected slow subscriber to be closed")
	}
}

func TestSubscribeUnknownGame(t *testing.T) {
	s := NewService()
	if _, _, err := s.Subscribe(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, ok := s.Get("nope"); ok {
		t.Fatalf("subscribing must not create a game")
	}
}

func TestSubscriptionClosesOnCancel(t *testing.T) {
	s := NewService()
	gs, _ := s.CreateGame(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := s.Subscribe(ctx, gs.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestSizeLimit(t *testing.T) {
	s, err := New(Config{MaxSize: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.MaxSize() != 5 {
		t.Fatalf("expected max size 5, got %d", s.MaxSize())
	}
	if _, err := s.CreateGame(Options{Size: 5}); err != nil {
		t.Fatalf("size at the limit should be accepted: %v", err)
	}
	for _, n := range []int{6, 600, 10000000} {
		if _, err := s.CreateGame(Options{Size: n, WinLength: 3}); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("size %d: expected ErrInvalidConfig, got %v", n, err)
		}
	}
	gs, _ := s.CreateGame(Options{})
	if _, err := s.Configure(gs.ID, 600, 3); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig from configure, got %v", err)
	}
	if cur, _ := s.Get(gs.ID); len(cur.Game.Points) != 27 {
		t.Fatalf("rejected configure must keep the previous shape")
	}

	if NewService().MaxSize() != DefaultMaxSize {
		t.Fatalf("expected the default limit")
	}
	if _, err := New(Config{MaxSize: domain.MaxSize + 1}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected a limit above the generator's maximum to be rejected, got %v", err)
	}
	if _, err := New(Config{MaxSize: 4, Defaults: Options{Size: 5}}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected defaults above the limit to be rejected, got %v", err)
	}
}

func TestValidPlayerID(t *testing.T) {
	if ValidPlayerID("p1") || !ValidPlayerID(newGameID()) {
		t.Fatalf("unexpected player id validation")
	}
}
