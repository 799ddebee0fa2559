package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/google/uuid"

	"github.com/jaminalder/cubic-tic-tac-toe/internal/app"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/domain"
)

const playerCookie = "player_id"

type templates struct {
	base  *template.Template
	game  *template.Template
	board *template.Template
	index *template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"symbol": func(c domain.Claim) string { return c.String() },
	}
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Funcs(funcs()).Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
	// board lives in the base set so the game page can include it
	template.Must(base.New("board").Parse(boardTemplate))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(indexTemplate))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(`
<div hx-ext="sse" hx-sse="connect:/game/{{.ID}}/events">
  <p class="seat">{{if .Seat}}You play {{.Seat}}{{else}}You are watching{{end}}</p>
  <div id="board" hx-sse="swap:board">{{template "board" .Board}}</div>
</div>`))
	board := template.Must(template.New("board_only").Funcs(funcs()).Parse(boardTemplate))
	return &templates{base: base, game: game, board: board, index: index}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	if name == "" {
		_ = t.Execute(&buf, data)
	} else {
		_ = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes()
}

const indexTemplate = `<h1>Cubic TicTacToe</h1>
<form action="/game" method="post">
  <label>Size <input type="number" name="n" min="3" max="{{.MaxSize}}" value="{{.Size}}"></label>
  <label>Win length <input type="number" name="m" min="3" max="{{.MaxSize}}" value="{{.WinLength}}"></label>
  <label>Computer plays
    <select name="ai">
      <option value=""{{if not .AI}} selected{{end}}>nobody</option>
      <option value="A"{{if eq .AI "A"}} selected{{end}}>A</option>
      <option value="B"{{if eq .AI "B"}} selected{{end}}>B</option>
    </select>
  </label>
  <button>Create</button>
</form>`

const boardTemplate = `
<div id="board">
  {{if .Error}}
  <div class="alert">{{.Error}}</div>
  {{end}}
  {{if .Result}}
  <div class="result">{{.Result}}</div>
  {{end}}
  <p class="status">{{.N}}×{{.N}}×{{.N}}, {{.M}} in a row. {{.Turn}} to move. A {{.ScoreA}} · B {{.ScoreB}} · draws {{.Draws}}</p>
  {{range .Layers}}
  <div class="layer" data-z="{{.Z}}">
    {{range .Rows}}
    <div class="row">
      {{range .}}
      <form hx-post="/game/{{$.ID}}/play" hx-target="#board" hx-swap="outerHTML" method="post">
        <input type="hidden" name="p" value="{{.Point}}">
        <button type="submit"{{if .Claim}} disabled{{end}}>{{symbol .Claim}}</button>
      </form>
      {{end}}
    </div>
    {{end}}
  </div>
  {{end}}
  <form hx-post="/game/{{.ID}}/configure" hx-target="#board" hx-swap="outerHTML" method="post">
    <input type="number" name="n" min="3" value="{{.N}}">
    <input type="number" name="m" min="3" value="{{.M}}">
    <button type="submit">Configure</button>
  </form>
  <form hx-post="/game/{{.ID}}/reset" hx-target="#board" hx-swap="outerHTML" method="post">
    <select name="first"><option value="A">A starts</option><option value="B">B starts</option></select>
    <button type="submit">Reset</button>
  </form>
  <form hx-post="/game/{{.ID}}/ai" hx-target="#board" hx-swap="outerHTML" method="post">
    <select name="seat">
      <option value=""{{if not .AI}} selected{{end}}>no computer</option>
      <option value="A"{{if eq .AI "A"}} selected{{end}}>computer plays A</option>
      <option value="B"{{if eq .AI "B"}} selected{{end}}>computer plays B</option>
    </select>
    <button type="submit">Set</button>
  </form>
</div>
`

type cellView struct {
	Point int
	Claim domain.Claim
}

type layerView struct {
	Z    int
	Rows [][]cellView
}

// boardView is the template model of one game: N layers of N rows of N cells.
type boardView struct {
	ID     string
	N, M   int
	Turn   string
	AI     string
	ScoreA int
	ScoreB int
	Draws  int
	Layers []layerView
	Result string
	Error  string
}

func newBoardView(gs app.GameState, errMsg string) boardView {
	g := gs.Game
	v := boardView{
		ID:     gs.ID,
		Turn:   g.Turn.String(),
		AI:     g.AI.String(),
		ScoreA: g.Score[domain.PlayerA],
		ScoreB: g.Score[domain.PlayerB],
		Draws:  g.Score[domain.Unclaimed],
		Error:  errMsg,
	}
	if g.Lines == nil {
		return v
	}
	v.N, v.M = g.Lines.N, g.Lines.M
	lat := domain.Lattice{N: v.N}
	for z := 0; z < v.N; z++ {
		layer := layerView{Z: z}
		for y := 0; y < v.N; y++ {
			row := make([]cellView, v.N)
			for x := range row {
				p := lat.Index(x, y, z)
				row[x] = cellView{Point: p, Claim: g.Points[p]}
			}
			layer.Rows = append(layer.Rows, row)
		}
		v.Layers = append(v.Layers, layer)
	}
	switch gs.Last.Status {
	case domain.Won:
		v.Result = "Player " + gs.Last.Winner.String() + " won. New game started."
	case domain.Draw:
		v.Result = "Draw. New game started."
	}
	return v
}

// ensurePlayerCookie returns the caller's player ID, issuing a fresh UUIDv4 cookie when the
// request carries none or a malformed one.
func ensurePlayerCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookie); err == nil && app.ValidPlayerID(c.Value) {
		return c.Value
	}
	v := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: playerCookie, Value: v, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	return v
}
