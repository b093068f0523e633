// Package server polls the bus periodically and publishes each reading over
// WebSocket and a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shaunagostinho/vbusreader/internal/reader"
	"github.com/shaunagostinho/vbusreader/internal/vbus"
)

// Poller performs one read cycle.
type Poller interface {
	Read(ctx context.Context) (reader.Reading, error)
}

// Recorder persists readings; *recorder.Recorder in production.
type Recorder interface {
	Record(ts time.Time, res vbus.Result, complete bool) error
	SetEnabled(on bool)
	IsEnabled() bool
	Close()
}

// Options configures the server.
type Options struct {
	ListenAddr   string
	PollInterval time.Duration
}

// Server coordinates bus polling and broadcasts readings to WebSocket clients.
type Server struct {
	opts     Options
	poller   Poller
	recorder Recorder
	webFS    fs.FS
	log      *zap.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	latestMu sync.RWMutex
	latest   *Frame
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to WebSocket clients and served at
// /api/latest.
type Frame struct {
	Result   vbus.Result `json:"result"`
	Complete bool        `json:"complete"`
	Error    string      `json:"error,omitempty"`
	Stamp    int64       `json:"stamp"` // Unix ms
}

// New creates a Server. recorder and webFS may be nil.
func New(opts Options, poller Poller, recorder Recorder, webFS fs.FS, log *zap.Logger) *Server {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		opts:     opts,
		poller:   poller,
		recorder: recorder,
		webFS:    webFS,
		log:      log,
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/latest", s.handleLatest)
	mux.HandleFunc("/api/recorder", s.handleRecorder)
	return mux
}

// Run starts the HTTP server and the polling loop. It returns when ctx is
// cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.opts.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info("listening", zap.String("addr", s.opts.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade error", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 16),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()
	s.log.Info("client connected", zap.Int("total", total))

	// New clients get the latest reading right away.
	if latest := s.Latest(); latest != nil {
		if data, err := json.Marshal(latest); err == nil {
			client.send <- data
		}
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive, detects disconnect)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			s.log.Info("client disconnected", zap.Int("total", total))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	latest := s.Latest()
	if latest == nil {
		http.Error(w, "no reading yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(latest)
}

// recorderState is the body of GET and POST /api/recorder.
type recorderState struct {
	Enabled bool `json:"enabled"`
}

// handleRecorder reports the recorder state on GET and switches it on POST.
func (s *Server) handleRecorder(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		http.Error(w, "recorder not configured", http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req recorderState
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.recorder.SetEnabled(req.Enabled)
		s.log.Info("recorder toggled", zap.Bool("enabled", req.Enabled))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recorderState{Enabled: s.recorder.IsEnabled()})
}

// Latest returns the most recent frame, or nil before the first poll.
func (s *Server) Latest() *Frame {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

// pollLoop reads immediately, then every PollInterval. After a failed read
// it retries with exponential backoff starting at 1s, capped at the poll
// interval.
func (s *Server) pollLoop(ctx context.Context) {
	const minRetry = time.Second
	retry := minRetry
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.recorder != nil {
				s.recorder.Close()
			}
			return
		case <-timer.C:
		}

		if err := s.poll(ctx); err != nil {
			s.log.Warn("read failed", zap.Error(err), zap.Duration("retry_in", retry))
			timer.Reset(retry)
			retry *= 2
			if retry > s.opts.PollInterval {
				retry = s.opts.PollInterval
			}
			continue
		}
		retry = minRetry
		timer.Reset(s.opts.PollInterval)
	}
}

// poll runs one read and publishes it. A failed read that still produced
// fields is published too, with the error attached.
func (s *Server) poll(ctx context.Context) error {
	reading, err := s.poller.Read(ctx)
	if err != nil && len(reading.Result) == 0 {
		return err
	}
	if reading.Stamp.IsZero() {
		reading.Stamp = time.Now()
	}

	frame := &Frame{
		Result:   reading.Result,
		Complete: reading.Complete,
		Stamp:    reading.Stamp.UnixMilli(),
	}
	if err != nil {
		frame.Error = err.Error()
	}

	s.latestMu.Lock()
	s.latest = frame
	s.latestMu.Unlock()

	s.broadcast(frame)

	if s.recorder != nil {
		if rerr := s.recorder.Record(reading.Stamp, reading.Result, reading.Complete); rerr != nil {
			s.log.Warn("record failed", zap.Error(rerr))
		}
	}
	return err
}

func (s *Server) broadcast(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
