package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jaminalder/cubic-tic-tac-toe/internal/app"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/domain"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/store"
)

// StatsSource reports aggregated results of finished games.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

type handlers struct {
	svc   *app.Service
	tpl   *templates
	stats StatsSource
	relay http.Handler
	log   *zap.Logger
}

func (h *handlers) renderBoard(gs app.GameState, errMsg string) []byte {
	return renderTemplate(h.tpl.board, "", newBoardView(gs, errMsg))
}

func (h *handlers) writeBoard(w http.ResponseWriter, gs app.GameState, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.renderBoard(gs, errMsg))
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	d := h.svc.Defaults()
	data := struct {
		Size, WinLength, MaxSize int
		AI                       string
	}{d.Size, d.WinLength, h.svc.MaxSize(), d.AI.String()}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.index, "", data))
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	o := app.Options{AI: domain.ParseClaim(r.Form.Get("ai"))}
	o.Size, _ = strconv.Atoi(r.Form.Get("n"))
	o.WinLength, _ = strconv.Atoi(r.Form.Get("m"))
	gs, err := h.svc.CreateGame(o)
	if errors.Is(err, domain.ErrInvalidConfig) {
		http.Error(w, h.errorMessage(err), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("failed to create game", zap.Error(err))
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/game/"+gs.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// ensure cookie and auto-claim seat
	pid := ensurePlayerCookie(w, r)
	seat, gs, err := h.svc.Join(id, pid)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	data := struct {
		ID    string
		Seat  string
		Board boardView
	}{ID: gs.ID, Seat: seat.String(), Board: newBoardView(*gs, "")}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.game, "", data))
}

func (h *handlers) join(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	_, gs, err := h.svc.Join(id, pid)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	h.writeBoard(w, *gs, "")
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	_ = r.ParseForm()
	p, err := strconv.Atoi(r.Form.Get("p"))
	if err != nil {
		h.respond(w, r, id, nil, domain.ErrOutOfBounds)
		return
	}
	gs, err := h.svc.Play(id, pid, p)
	h.respond(w, r, id, gs, err)
}

func (h *handlers) configure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_ = r.ParseForm()
	n, errN := strconv.Atoi(r.Form.Get("n"))
	m, errM := strconv.Atoi(r.Form.Get("m"))
	if errN != nil || errM != nil {
		h.respond(w, r, id, nil, domain.ErrInvalidConfig)
		return
	}
	gs, err := h.svc.Configure(id, n, m)
	h.respond(w, r, id, gs, err)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_ = r.ParseForm()
	gs, err := h.svc.Reset(id, domain.ParseClaim(r.Form.Get("first")))
	h.respond(w, r, id, gs, err)
}

func (h *handlers) setAI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_ = r.ParseForm()
	gs, err := h.svc.SetAI(id, domain.ParseClaim(r.Form.Get("seat")))
	h.respond(w, r, id, gs, err)
}

// respond renders the board fragment, with the error message of a rejected action if any.
func (h *handlers) respond(w http.ResponseWriter, r *http.Request, id string, gs *app.GameState, err error) {
	var errMsg string
	if err != nil {
		errMsg = h.errorMessage(err)
		if gs == nil {
			if g, ok := h.svc.Get(id); ok {
				gs = g
			}
		}
	}
	if gs == nil {
		http.NotFound(w, r)
		return
	}
	h.writeBoard(w, *gs, errMsg)
}

func (h *handlers) errorMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, app.ErrNotAPlayer):
		return "You are a spectator"
	case errors.Is(err, domain.ErrOccupied):
		return "Point is already claimed"
	case errors.Is(err, domain.ErrOutOfBounds):
		return "Out of bounds"
	case errors.Is(err, domain.ErrInvalidConfig):
		return fmt.Sprintf("Invalid configuration: size must be between 3 and %d, win length between 3 and size", h.svc.MaxSize())
	case errors.Is(err, domain.ErrNotConfigured):
		return "Game is not configured"
	default:
		return "Invalid move"
	}
}

type scoreView struct {
	A     int `json:"a"`
	B     int `json:"b"`
	Draws int `json:"draws"`
}

type outcomeView struct {
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	Line   []int  `json:"line,omitempty"`
}

type stateView struct {
	ID        string      `json:"id"`
	Size      int         `json:"size"`
	WinLength int         `json:"winLength"`
	Mode      string      `json:"mode"`
	Points    []string    `json:"points"`
	Turn      string      `json:"turn"`
	AI        string      `json:"ai,omitempty"`
	Seat      string      `json:"seat,omitempty"`
	Score     scoreView   `json:"score"`
	Last      outcomeView `json:"last"`
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gs, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	g := gs.Game
	v := stateView{
		ID:     gs.ID,
		Mode:   g.Mode.String(),
		Points: make([]string, len(g.Points)),
		Turn:   g.Turn.String(),
		AI:     g.AI.String(),
		Score:  scoreView{A: g.Score[domain.PlayerA], B: g.Score[domain.PlayerB], Draws: g.Score[domain.Unclaimed]},
		Last:   outcomeView{Status: gs.Last.Status.String(), Winner: gs.Last.Winner.String(), Line: gs.Last.Line},
	}
	if g.Lines != nil {
		v.Size, v.WinLength = g.Lines.N, g.Lines.M
	}
	for i, c := range g.Points {
		v.Points[i] = c.String()
	}
	if c, err := r.Cookie(playerCookie); err == nil {
		v.Seat = gs.Seat(c.Value).String()
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) statsJSON(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	st, err := h.stats.Stats(r.Context())
	if err != nil {
		h.log.Error("failed to load stats", zap.Error(err))
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var heartbeatInterval = 15 * time.Second

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		w.Header().Del("Content-Type")
		http.NotFound(w, r)
		return
	}
	defer unsub()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			_, _ = io.WriteString(w, "event: board\n")
			writeSSEData(w, b)
			flusher.Flush()
		}
	}
}

// writeSSEData writes b as one event payload; every line needs its own data: prefix.
func writeSSEData(w io.Writer, b []byte) {
	start := 0
	for i, c := range b {
		if c == '\n' {
			_, _ = fmt.Fprintf(w, "data: %s\n", b[start:i])
			start = i + 1
		}
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", b[start:])
}
