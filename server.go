package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-autogain/internal/config"
	"github.com/oszuidwest/zwfm-autogain/internal/control"
	"github.com/oszuidwest/zwfm-autogain/internal/events"
)

// Server is an HTTP server that provides the web interface and API for the
// gain controller.
type Server struct {
	config          *config.Config
	loop            *control.Loop
	journal         *events.Logger
	version         *VersionChecker
	ffmpegAvailable bool
}

// NewServer returns a new Server for the given config and control loop.
func NewServer(cfg *config.Config, loop *control.Loop, journal *events.Logger, ffmpegAvailable bool) *Server {
	return &Server{
		config:          cfg,
		loop:            loop,
		journal:         journal,
		version:         NewVersionChecker(),
		ffmpegAvailable: ffmpegAvailable,
	}
}

// upgrader upgrades HTTP connections for the live meter. Same-origin only.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// WSStatusMessage is the periodic status frame pushed to the live meter.
type WSStatusMessage struct {
	Type            string         `json:"type"`
	FFmpegAvailable bool           `json:"ffmpeg_available"`
	Loop            control.Status `json:"loop"`
	NoiseHigh       float64        `json:"noise_high"`
	NoiseLow        float64        `json:"noise_low"`
	MinGainDB       float64        `json:"min_gain_db"`
	MaxGainDB       float64        `json:"max_gain_db"`
	Version         VersionInfo    `json:"version"`
}

// handleWebSocket pushes loop status to the dashboard at meter rate.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Buffered send channel for thread-safe writes. Only the writer goroutine
	// writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, done)

	s.runWebSocketEventLoop(send, done)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn *websocket.Conn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader drains the connection and signals disconnect.
func (s *Server) runWebSocketReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// runWebSocketEventLoop pushes status frames until the client disconnects.
func (s *Server) runWebSocketEventLoop(send chan any, done <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-ticker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// buildWSStatus returns the current status frame.
func (s *Server) buildWSStatus() WSStatusMessage {
	cfg := s.config.Snapshot()

	return WSStatusMessage{
		Type:            "status",
		FFmpegAvailable: s.ffmpegAvailable,
		Loop:            s.loop.Status(),
		NoiseHigh:       cfg.NoiseHigh,
		NoiseLow:        cfg.NoiseLow,
		MinGainDB:       cfg.MinGainDB,
		MaxGainDB:       cfg.MaxGainDB,
		Version:         s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.basicAuth

	mux.HandleFunc("/api/status", auth(s.handleAPIStatus))
	mux.HandleFunc("/api/events", auth(s.handleAPIEvents))
	mux.HandleFunc("/api/calibrate", auth(s.handleAPICalibrate))
	mux.HandleFunc("/api/calibrate/apply", auth(s.handleAPICalibrateApply))
	mux.HandleFunc("/api/settings", auth(s.handleAPISettings))
	mux.HandleFunc("/api/test/webhook", auth(s.handleTestWebhook))
	mux.HandleFunc("/api/test/log", auth(s.handleTestLog))
	mux.HandleFunc("/api/test/s3", auth(s.handleTestS3))

	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("/", auth(s.handleStatic))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// basicAuth returns middleware enforcing HTTP basic auth with the configured
// credentials. Comparison is constant-time.
func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config.Snapshot()

		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.WebUser)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.WebPassword)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="autogain"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// handleStatic serves the embedded dashboard.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write([]byte(indexHTML)); err != nil {
		slog.Error("failed to write index.html", "error", err)
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
