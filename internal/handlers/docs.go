package handlers

import (
	"html/template"
	"log"
	"net/http"
)

// Endpoint describes one route on the API documentation page
type Endpoint struct {
	Method      string
	Path        string
	Auth        bool
	Description string
}

var apiEndpoints = []Endpoint{
	{"POST", "/api/games", false, `Create a game. Optional body: {"displayName", "rules": "standard"|"classic", "passcode"}. Returns the white seat token.`},
	{"POST", "/api/games/{sessionId}/join", false, `Take the black seat. Optional body: {"displayName", "passcode"}. Send your current seat token as a Bearer header to get a fresh one for the same seat.`},
	{"GET", "/api/games/{sessionId}", false, "Fetch the game document. Add ?format=text for an ASCII board."},
	{"GET", "/api/games/{sessionId}/squares/{square}/moves", false, "List the destinations of the piece on a square, e.g. /squares/e2/moves."},
	{"POST", "/api/games/{sessionId}/move", true, `Move a piece: {"from": "e2", "to": "e4"}. Capturing the king ends the game.`},
	{"POST", "/api/games/{sessionId}/resign", true, "Resign. The opponent wins."},
	{"GET", "/api/games/{sessionId}/moves", false, "List the recorded moves in order."},
	{"GET", "/ws/games/{sessionId}?token=", true, "Websocket feed, authorized by the seat token in the query. Messages: game_state, player_joined, move, game_over and resignation."},
}

var apiDocsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Chess Moves API</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; max-width: 960px; margin: 2em auto; color: #333; }
        .endpoint { border-left: 4px solid #667eea; padding: 0.5em 1em; margin: 1em 0; background: #f7f7fb; }
        .method { font-weight: bold; margin-right: 0.5em; }
        .auth { color: #a33; font-size: 0.9em; }
        code { background: #eee; padding: 0 0.2em; }
    </style>
</head>
<body>
    <h1>Chess Moves API</h1>
    <p>Squares use algebraic notation (<code>a1</code> to <code>h8</code>). Moves are pseudo-legal:
    a king may move into check and the game ends when a king is captured.</p>
    <p>Routes marked <span class="auth">seat</span> need <code>Authorization: Bearer &lt;seatToken&gt;</code> (the websocket takes it as <code>?token=</code>).
    Player ids are never published; a seat token is the only proof of a seat.</p>
    {{range .}}
    <div class="endpoint">
        <span class="method">{{.Method}}</span><code>{{.Path}}</code>{{if .Auth}} <span class="auth">seat</span>{{end}}
        <p>{{.Description}}</p>
    </div>
    {{end}}
</body>
</html>`))

func ServeAPIDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := apiDocsTemplate.Execute(w, apiEndpoints); err != nil {
		log.Printf("Failed to render API docs: %v", err)
	}
}
