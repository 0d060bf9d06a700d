// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/nfnt/resize"

	"framekeep/internal/recorder"
)

// Message types.
type Message struct {
	Type string `json:"type"`
}

type StartMessage struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type StatusMessage struct {
	Type            string  `json:"type"`
	Running         bool    `json:"running"`
	Label           string  `json:"label"`
	SessionID       string  `json:"session_id,omitempty"`
	ScreenshotCount int     `json:"screenshot_count"`
	LastScreenshot  string  `json:"last_screenshot,omitempty"`
	AudioLevelDB    float64 `json:"audio_level_db"`
	AudioWriting    bool    `json:"audio_writing"`
	AudioSeconds    float64 `json:"audio_seconds"`
	AudioPath       string  `json:"audio_path,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	rec        *recorder.Manager
	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a new server.
func New(rec *recorder.Manager) *Server {
	s := &Server{
		rec:        rec,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}

	go s.broadcastStatus()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/stop", s.handleSessionStop)
	mux.HandleFunc("GET /api/preview", s.handlePreview)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	ctx := r.Context()
	slog.Info("websocket connected", "remote", r.RemoteAddr)

	// Send the current state right away so the client doesn't wait for the
	// next mutation.
	_ = wsjson.Write(ctx, conn, statusMessage(s.rec.Status()))

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			slog.Debug("websocket read error", "error", err)
			return
		}

		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			slog.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "start":
			var start StartMessage
			if err := json.Unmarshal(msg, &start); err != nil {
				continue
			}
			if err := s.rec.Start(start.Label); err != nil {
				slog.Error("session start failed", "error", err)
				_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: err.Error()})
			}
		case "stop":
			s.rec.Stop()
		}
	}
}

// broadcastStatus fans combined snapshots out to every connection.
func (s *Server) broadcastStatus() {
	for st := range s.rec.Events() {
		msg := statusMessage(st)

		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = wsjson.Write(ctx, c, msg)
			}(conn)
		}
		s.mu.RUnlock()
	}
}

func statusMessage(st recorder.Status) StatusMessage {
	return StatusMessage{
		Type:            "status",
		Running:         st.Running,
		Label:           st.Label,
		SessionID:       st.Screen.SessionID,
		ScreenshotCount: st.Screen.Count,
		LastScreenshot:  st.Screen.LastPath,
		AudioLevelDB:    st.Audio.LevelDB,
		AudioWriting:    st.Audio.Writing,
		AudioSeconds:    st.Audio.RecordedSeconds,
		AudioPath:       st.Audio.Path,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusMessage(s.rec.Status()))
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.rec.Start(req.Label); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "session_started"})
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	s.rec.Stop()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "session_stopped"})
}

// handlePreview serves a downscaled copy of the most recent screenshot.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	path := s.rec.Status().Screen.LastPath
	if path == "" {
		http.Error(w, "no screenshot yet", http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "screenshot no longer exists", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("preview open failed", "path", path, "error", err)
		http.Error(w, "preview unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		slog.Error("preview decode failed", "path", path, "error", err)
		http.Error(w, "preview unavailable", http.StatusInternalServerError)
		return
	}

	thumb := resize.Thumbnail(PreviewMaxWidth, PreviewMaxWidth, img, resize.Lanczos3)
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, thumb); err != nil {
		slog.Debug("preview encode failed", "error", err)
	}
}
