// Package api serves one camera over HTTP.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/camserver/internal/camera"
	"github.com/bryanchriswhite/camserver/internal/output"
)

// Version is reported by /api/health
const Version = "0.1.0"

// JPEGQuality is used for /camera and /takephoto
const JPEGQuality = 95

// Camera is what the server needs from a camera controller
type Camera interface {
	IsActive() bool
	GetImage(rotate int) (*image.RGBA, bool)
	Seq() uint64
	Info() camera.Info
}

// Options configures a Server
type Options struct {
	Backend  string
	Photo    PhotoOptions
	Detector FaceDetector
	// Stream is optional; without it /stream and /snapshot.jpg are 404
	Stream *output.MJPEGOutput
	// StatusInterval is the websocket keepalive period
	StatusInterval time.Duration
	Logger         zerolog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	camera   Camera
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer creates a new API server
func NewServer(cam Camera, opts Options) *Server {
	if opts.Photo.Width <= 0 || opts.Photo.Height <= 0 {
		opts.Photo = DefaultPhotoOptions()
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = time.Second
	}
	s := &Server{
		router: mux.NewRouter(),
		camera: cam,
		opts:   opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: opts.Logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/camera", s.handleCamera).Methods("GET")
	s.router.HandleFunc("/takephoto", s.handleTakePhoto).Methods("GET")
	s.router.HandleFunc("/ws", s.handleStatusStream)

	if s.opts.Stream != nil {
		s.router.Handle("/stream", s.opts.Stream.StreamHandler()).Methods("GET")
		s.router.HandleFunc("/snapshot.jpg", s.opts.Stream.SnapshotHandler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/info", s.handleInfo).Methods("GET")
	if s.opts.Stream != nil {
		api.HandleFunc("/stream/stats", s.opts.Stream.StatsHandler()).Methods("GET")
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Handler returns the router wrapped in the response header middleware
func (s *Server) Handler() http.Handler {
	return s.withHeaders(s.router)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// streaming clients never go idle
		_ = srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withHeaders adds CORS and Connection headers
func (s *Server) withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if !websocket.IsWebSocketUpgrade(r) {
			w.Header().Set("Connection", "close")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rotation reads ?rotate=N; anything unparsable is 0
func rotation(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("rotate"))
	if err != nil {
		return 0
	}
	return camera.NormalizeRotation(n)
}

func writeBase64JPEG(w http.ResponseWriter, img image.Image) (int, error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if img == nil {
		return 0, nil
	}
	data, err := output.EncodeJPEG(img, JPEGQuality)
	if err != nil {
		return 0, err
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	_, err = w.Write([]byte(encoded))
	return len(encoded), err
}

// HTTP Handlers

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"status": s.camera.IsActive()})
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	rotate := rotation(r)
	var out image.Image
	if img, ok := s.camera.GetImage(rotate); ok {
		out = img
	}

	n, err := writeBase64JPEG(w, out)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to serve camera image")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info().Int("rotate", rotate).Int("length", n).Msg("REQ: camera")
}

func (s *Server) handleTakePhoto(w http.ResponseWriter, r *http.Request) {
	rotate := rotation(r)
	img, ok := s.camera.GetImage(rotate)

	var photo *image.RGBA
	if ok {
		var err error
		photo, err = Portrait(img, s.opts.Detector, s.opts.Photo)
		if err != nil {
			s.log.Warn().Err(err).Msg("Face detection failed, using whole frame")
			photo, _ = Portrait(img, nil, s.opts.Photo)
		}
	}

	var out image.Image
	if photo != nil {
		out = photo
	}
	n, err := writeBase64JPEG(w, out)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to serve photo")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info().Int("rotate", rotate).Int("length", n).Msg("REQ: takephoto")
}

// statusMessage is pushed over /ws
type statusMessage struct {
	Status bool   `json:"status"`
	Seq    uint64 `json:"seq"`
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// the read loop notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	var (
		last     statusMessage
		lastSent time.Time
		sentOnce bool
	)
	for {
		msg := statusMessage{Status: s.camera.IsActive(), Seq: s.camera.Seq()}
		if !sentOnce || msg.Status != last.Status || time.Since(lastSent) >= s.opts.StatusInterval {
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
			last, lastSent, sentOnce = msg, time.Now(), true
		}

		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-poll.C:
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// infoResponse is served by /api/info
type infoResponse struct {
	camera.Info
	Backend string        `json:"backend"`
	Stream  *output.Stats `json:"stream,omitempty"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := infoResponse{
		Info:    s.camera.Info(),
		Backend: s.opts.Backend,
	}
	if s.opts.Stream != nil {
		stats := s.opts.Stream.Stats()
		resp.Stream = &stats
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.log.Debug().Str("path", r.URL.Path).Msg("Page not found")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("PAGE-NOT-FOUND: " + r.URL.Path))
}
