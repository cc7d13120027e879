package gateway

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/telnet2/sessiongw/auth"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// router assembles the HTTP Adapter (C13): the sibling REST endpoints
// plus the WebSocket upgrade route, behind CORS and a per-IP connection
// rate limiter. The rate limiter's state lives here, in the HTTP
// adapter, never in the Session Registry — per the REDESIGN FLAGS in
// spec.md §9 ("rate-limit state... belongs to the HTTP adapter, not the
// core").
func (d *Dispatcher) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	limiter := newRateLimiter(20, time.Minute)
	r.Use(limiter.middleware)

	r.Get("/api/terminal-port", d.handleTerminalPort)
	r.Get("/api/current-user", d.handleCurrentUser)
	r.Get("/ws", d.handleWebSocket)
	r.Post("/api/images/{sessionId}", d.handleImageUpload)

	return r
}

func (d *Dispatcher) handleTerminalPort(w http.ResponseWriter, r *http.Request) {
	port, err := d.EnsureStarted()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"port": port})
}

func (d *Dispatcher) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := d.Auth.ResolveUserFromHeaders(r.Header)
	if !ok {
		writeJSON(w, map[string]interface{}{"authenticated": false})
		return
	}
	writeJSON(w, map[string]interface{}{"authenticated": true, "userId": userID})
}

// handleImageUpload is the REST mirror of an upload_image frame
// (SPEC_FULL.md §4.13): a multipart form upload that resolves to the
// same Image Store (C12) an upload_image frame writes through, so an
// imageId minted here is equally valid in a later input frame's
// imageIds.
func (d *Dispatcher) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := d.Auth.ResolveUserFromHeaders(r.Header)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(d.Cfg.MaxImageBytes + 1<<20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, d.Cfg.MaxImageBytes+1))
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = r.FormValue("mimeType")
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	imageID, err := d.Images.Put(userID, header.Filename, mimeType, encoded)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{"status": "success", "imageId": imageID})
}

// handleWebSocket implements spec.md §4.6 bullets 2-4: subprotocol
// admission, connection classification, and authentication, all before
// any frame is processed.
func (d *Dispatcher) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if proto := r.Header.Get("Sec-WebSocket-Protocol"); containsHMR(proto) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			closeWithCode(wsConn, 1002, "unsupported subprotocol")
		}
		return
	}

	kind := connKindPTY
	if r.URL.Query().Get("type") == "claude-code" {
		kind = connKindAssistant
	}

	userID, ok := d.resolveUserID(r, kind)
	if !ok {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			closeWithCode(wsConn, 1008, "Authentication required")
		}
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	d.serveConn(wsConn, kind, userID)
}

// resolveUserID implements spec.md §4.6 bullet 4. PTY admits a
// placeholder userId only in debug mode; production deployments must
// refuse exactly like the assistant path.
func (d *Dispatcher) resolveUserID(r *http.Request, kind connKind) (string, bool) {
	q := r.URL.Query()

	if uid := q.Get("userId"); uid != "" {
		if d.Cfg.AllowBareUserIDQueryParam {
			d.Logger.Printf("gateway: WARNING accepted bare userId query parameter (dev-only path) for %s", uid)
			return uid, true
		}
		// Per spec.md §9's open question, a bare userId is never
		// trusted on its own; fall through to header-based resolution.
	}

	headers := r.Header.Clone()
	if sess := q.Get("session"); sess != "" {
		cookieHeader := auth.BuildCookieHeaderFromSessionParam(sess)
		headers.Set("Cookie", cookieHeader.Get("Cookie"))
	}

	if userID, ok := d.Auth.ResolveUserFromHeaders(headers); ok {
		return userID, true
	}

	if kind == connKindPTY && d.Cfg.Debug {
		return "dev-placeholder-user", true
	}

	return "", false
}

func containsHMR(proto string) bool {
	return strings.Contains(proto, "vite-hmr") || strings.Contains(proto, "vite-ping")
}

func closeWithCode(c *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.Close()
}

const writeWait = 5 * time.Second

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// rateLimiter is a simple sliding-window per-IP connection attempt
// limiter (at most max attempts within the trailing window),
// intentionally separate from the Session Registry.
type rateLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	attempts map[string][]time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{max: max, window: window, attempts: make(map[string][]time.Time)}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.attempts[ip][:0]
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rl.max {
		rl.attempts[ip] = kept
		return false
	}
	rl.attempts[ip] = append(kept, now)
	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}
