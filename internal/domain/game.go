package domain

import (
	"errors"
	"strings"
)

// Claim is the ownership tag of a lattice point.
type Claim uint8

const (
	Unclaimed Claim = iota
	PlayerA
	PlayerB
)

// Opponent returns the other player. Unclaimed has no opponent.
func (c Claim) Opponent() Claim {
	switch c {
	case PlayerA:
		return PlayerB
	case PlayerB:
		return PlayerA
	default:
		return Unclaimed
	}
}

func (c Claim) String() string {
	switch c {
	case PlayerA:
		return "A"
	case PlayerB:
		return "B"
	default:
		return ""
	}
}

// ParseClaim maps "A"/"B" (any case, surrounding space ignored) to a player; anything else
// is Unclaimed.
func ParseClaim(s string) Claim {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "A"):
		return PlayerA
	case strings.EqualFold(s, "B"):
		return PlayerB
	default:
		return Unclaimed
	}
}

// Status is the result of a move.
type Status uint8

const (
	Ongoing Status = iota
	Won
	Draw
)

func (s Status) String() string {
	switch s {
	case Won:
		return "won"
	case Draw:
		return "draw"
	default:
		return "ongoing"
	}
}

// Move is one claimed point.
type Move struct {
	Point int
	By    Claim
}

// Outcome describes what a call to ApplyMove did.
type Outcome struct {
	Status Status
	Winner Claim
	// Line is the completed combination when Status is Won.
	Line []int
	// Moves lists the caller's move followed by any AI replies.
	Moves []Move
	// Final is the board as it was when the game ended, before the reset.
	Final []Claim
	// Opening lists AI moves already made in the next game.
	Opening []Move
}

// Errors returned by domain operations.
var (
	ErrOutOfBounds   = errors.New("out of bounds")
	ErrOccupied      = errors.New("point claimed")
	ErrNotConfigured = errors.New("game not configured")
	ErrWrongPlayer   = errors.New("wrong player")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Game holds the board, turn and AI seat of one cubic tic-tac-toe match. A Game has a
// single writer; callers sharing one must serialise access.
type Game struct {
	Lines  *LineSet
	Mode   LineMode
	Points []Claim
	Turn   Claim
	// AI is the seat played by the computer, Unclaimed when both seats are human.
	AI      Claim
	Starter Claim
	Moves   int
	History []Move
	// Score counts wins per player; Score[Unclaimed] counts draws.
	Score [3]int
}

// New returns an unconfigured game with PlayerA to move.
func New() Game {
	return Game{Turn: PlayerA, Starter: PlayerA}
}

// NewGame returns a windowed game configured for an n×n×n lattice and win length m.
func NewGame(n, m int) (Game, error) {
	g := New()
	if err := g.Configure(n, m); err != nil {
		return Game{}, err
	}
	return g, nil
}

// Configure regenerates the win combinations for the new shape using g.Mode and starts a
// fresh game. On error the previous configuration is kept.
func (g *Game) Configure(n, m int) error {
	ls, err := NewLineSet(n, m, g.Mode)
	if err != nil {
		return err
	}
	g.ConfigureLines(ls)
	return nil
}

// ConfigureLines installs a pre-built line set and starts a fresh game.
func (g *Game) ConfigureLines(ls *LineSet) {
	g.Lines = ls
	g.Mode = ls.Mode
	g.Points = make([]Claim, ls.N*ls.N*ls.N)
	g.Reset(g.Starter)
}

// Configured reports whether moves can be accepted.
func (g *Game) Configured() bool { return g.Lines != nil }

// Reset clears every claim and hands the first move to first. If first is the AI seat the
// AI opens immediately; its moves are returned.
func (g *Game) Reset(first Claim) []Move {
	if first != PlayerA && first != PlayerB {
		first = PlayerA
	}
	for i := range g.Points {
		g.Points[i] = Unclaimed
	}
	g.Turn = first
	g.Starter = first
	g.Moves = 0
	g.History = nil
	if !g.Configured() {
		return nil
	}
	var opening []Move
	// An opening move cannot complete a line, so the loop stops on the human's turn.
	for budget := len(g.Points); g.Turn == g.AI && budget > 0; budget-- {
		p, ok := g.AIMove(g.AI)
		if !ok {
			break
		}
		opening = append(opening, Move{Point: p, By: g.AI})
		g.step(p, g.AI)
	}
	return opening
}

// SetAI hands seat c to the computer (Unclaimed for none). If it is now the AI's turn it
// moves at once.
func (g *Game) SetAI(c Claim) Outcome {
	g.AI = c
	if !g.Configured() || c == Unclaimed || g.Turn != c {
		return Outcome{}
	}
	out := Outcome{}
	status, line := g.autoplay(&out)
	return g.settle(out, status, line)
}

// PointState returns the claim on point p.
func (g *Game) PointState(p int) (Claim, error) {
	if p < 0 || p >= len(g.Points) {
		return Unclaimed, ErrOutOfBounds
	}
	return g.Points[p], nil
}

// Play claims p for the player to move.
func (g *Game) Play(p int) (Outcome, error) {
	return g.ApplyMove(p, g.Turn)
}

// ApplyMove claims p for c, checks for a win or draw and lets the AI answer. A rejected
// move leaves the game untouched.
func (g *Game) ApplyMove(p int, c Claim) (Outcome, error) {
	if !g.Configured() {
		return Outcome{}, ErrNotConfigured
	}
	if p < 0 || p >= len(g.Points) {
		return Outcome{}, ErrOutOfBounds
	}
	if c != g.Turn {
		return Outcome{}, ErrWrongPlayer
	}
	if g.Points[p] != Unclaimed {
		return Outcome{}, ErrOccupied
	}

	out := Outcome{Moves: []Move{{Point: p, By: c}}}
	status, line := g.step(p, c)
	if status == Ongoing {
		status, line = g.autoplay(&out)
	}
	return g.settle(out, status, line), nil
}

// autoplay applies AI moves while the AI is to move, bounded by the unclaimed points.
func (g *Game) autoplay(out *Outcome) (Status, []int) {
	for budget := len(g.Points) - g.Moves; g.Turn == g.AI && g.AI != Unclaimed && budget > 0; budget-- {
		p, ok := g.AIMove(g.AI)
		if !ok {
			break
		}
		out.Moves = append(out.Moves, Move{Point: p, By: g.AI})
		if status, line := g.step(p, g.AI); status != Ongoing {
			return status, line
		}
	}
	return Ongoing, nil
}

// settle records a finished game and restarts: the loser opens after a win, the player who
// did not open the drawn game opens after a draw.
func (g *Game) settle(out Outcome, status Status, line []int) Outcome {
	out.Status, out.Line = status, line
	if status == Ongoing {
		return out
	}
	out.Final = append([]Claim(nil), g.Points...)
	next := g.Starter.Opponent()
	if status == Won {
		out.Winner = g.Turn
		g.Score[out.Winner]++
		next = out.Winner.Opponent()
	} else {
		g.Score[Unclaimed]++
	}
	out.Opening = g.Reset(next)
	return out
}

// step claims p for c. On Ongoing the turn passes to the opponent; otherwise g.Turn is
// left on the player who ended the game.
func (g *Game) step(p int, c Claim) (Status, []int) {
	g.Points[p] = c
	g.Moves++
	g.History = append(g.History, Move{Point: p, By: c})
	if line := g.completed(p, c); line != nil {
		return Won, line
	}
	if g.Moves == len(g.Points) {
		return Draw, nil
	}
	g.Turn = c.Opponent()
	return Ongoing, nil
}

// completed returns a combination through p fully owned by c. Only combinations through
// the newly claimed point can have become complete.
func (g *Game) completed(p int, c Claim) []int {
	for _, li := range g.Lines.Through(p) {
		line := g.Lines.Lines[li]
		if count(g.Points, line, c) == len(line) {
			return append([]int(nil), line...)
		}
	}
	return nil
}

// AIMove picks the point the AI would claim for c without applying it.
func (g *Game) AIMove(c Claim) (int, bool) {
	if !g.Configured() {
		return -1, false
	}
	return ChooseMove(g.Points, g.Lines, c)
}

// Clone returns a deep copy safe to hand to another goroutine. The line set is shared.
func (g Game) Clone() Game {
	cp := g
	cp.Points = append([]Claim(nil), g.Points...)
	cp.History = append([]Move(nil), g.History...)
	return cp
}

func count(points []Claim, line []int, c Claim) int {
	n := 0
	for _, p := range line {
		if points[p] == c {
			n++
		}
	}
	return n
}
