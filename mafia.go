// Partybox-style Mafia lobby
//
// One player hosts a room and shares its 4-character code; everyone else
// joins with the code. The host tunes the role counts (mafia, doctor,
// detective) and starts the game once at least 3 players are in. Each player
// is then privately shown their dealt role, confirms it, and when the last
// player has confirmed, the host gets a full role summary.
//
// All game logic lives in games/mafia; this file only wires it to HTTP:
// - Shell page: /mafia
// - WebSocket per client: /mafia/ws (one session per connection)
// - QR code to share a room: /mafia/qr/:code

package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/mafiaparty/games/mafia"
)

func mafiaPage(cfg *Config) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<title>mafiaparty</title></head><body>`)
	htmlBody.WriteString(`<h1>Mafia</h1>`)
	htmlBody.WriteString(`<p>Host a room or join one with a 4-character code.</p>`)
	htmlBody.WriteString(fmt.Sprintf(`<p>Clients connect to <code>%s/mafia/ws</code>.</p>`, cfg.prefix))
	htmlBody.WriteString(`</body></html>`)

	return htmlBody.String()
}

func serveMafiaPage(cfg *Config, errs chan<- error) httprouter.Handle {
	page := mafiaPage(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(page))
		if err != nil {
			errs <- err

			return
		}
	}
}

// QR handler: generates a PNG QR code for a room's join URL.
func qrHandler(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := strings.ToUpper(ps.ByName("code"))
		if !mafia.ValidCode(code) {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + path + "?code=" + code

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerMafiaGame sets up routes so that:
//   - $path          → HTML shell
//   - $path/ws       → per-client WebSocket session
//   - $path/qr/:code → PNG QR code linking to the room
func registerMafiaGame(cfg *Config, path string, mux *httprouter.Router, store mafia.Store, errs chan<- error) {
	mux.GET(cfg.prefix+path, serveMafiaPage(cfg, errs))

	mux.GET(cfg.prefix+path+"/ws", serveMafiaWS(cfg, store))

	mux.GET(cfg.prefix+path+"/qr/:code", qrHandler(cfg, path))
}
