// Package stream serves a live counting run over HTTP: the annotated frames
// as an MJPEG stream, the running counts as JSON and a stop endpoint that
// ends the run.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/metrics"
	"gocv.io/x/gocv"
)

// Server holds the latest published frame and counts.  Publish is called by
// the run loop, handlers only ever read copies
type Server struct {
	log     logs.Log
	metrics *metrics.Metrics
	stop    context.CancelFunc
	router  *httprouter.Router

	mu      sync.Mutex
	frame   []byte
	frameID int
	counts  count.Counts
	// updated is closed and replaced on every Publish to wake streams
	updated chan struct{}
	closed  bool
	srv     *http.Server
	addr    string
}

// New returns a Server.  stop is called when a client posts to /stop
func New(log logs.Log, m *metrics.Metrics, stop context.CancelFunc) *Server {

	s := &Server{
		log:     log,
		metrics: m,
		stop:    stop,
		counts:  count.Counts{},
		updated: make(chan struct{}),
	}

	s.router = httprouter.New()
	s.router.GET("/stream", s.httpStream)
	s.router.GET("/frame.jpg", s.httpFrame)
	s.router.GET("/counts", s.httpCounts)
	s.router.POST("/stop", s.httpStop)

	if m != nil {
		s.router.Handler("GET", "/metrics", m.Handler())
	}

	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Publish encodes img as the latest frame and stores a copy of counts
func (s *Server) Publish(img gocv.Mat, counts count.Counts) error {

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)

	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.frame = data
	s.frameID++
	s.counts = counts.Clone()

	close(s.updated)
	s.updated = make(chan struct{})

	if s.metrics != nil {
		s.metrics.SetCounts(counts)
	}

	return nil
}

// SetCounts replaces the published counts without a new frame
func (s *Server) SetCounts(counts count.Counts) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts = counts.Clone()

	if s.metrics != nil {
		s.metrics.SetCounts(counts)
	}
}

// Counts returns a copy of the latest published counts
func (s *Server) Counts() count.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts.Clone()
}

// Close ends all streams, later publishes are ignored
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.updated)
	}
}

// latest returns the current frame, its id and the channel that is closed
// on the next publish
func (s *Server) latest() ([]byte, int, chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frame, s.frameID, s.updated, s.closed
}

// Start listens on addr and serves in the background until Shutdown.  The
// server is independent of the run so a client can still read the final
// counts after a stop.  A serving failure after start stops the run
func (s *Server) Start(addr string) error {

	l, err := net.Listen("tcp", addr)

	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = l.Addr().String()
	s.mu.Unlock()

	s.log.Infof("Open browser and view video at http://%v/stream", s.addr)

	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("Live server failed: %v", err)

			if s.stop != nil {
				s.stop()
			}
		}
	}()

	return nil
}

// Addr returns the address the server listens on once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Shutdown ends all streams and stops a started server, waiting up to the
// deadline of ctx for open requests
func (s *Server) Shutdown(ctx context.Context) error {

	s.Close()

	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (s *Server) httpStream(w http.ResponseWriter, r *http.Request, params httprouter.Params) {

	s.log.Infof("New stream client %v", r.RemoteAddr)

	if s.metrics != nil {
		defer s.metrics.ClientConnected()()
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	flusher, _ := w.(http.Flusher)
	sent := 0

	for {
		frame, id, updated, closed := s.latest()

		if id != sent && frame != nil {
			w.Write([]byte("--frame\r\n"))
			w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
			w.Write(frame)
			w.Write([]byte("\r\n"))

			if flusher != nil {
				flusher.Flush()
			}

			sent = id
		}

		if closed {
			return
		}

		select {
		case <-r.Context().Done():
			s.log.Infof("Stream client %v disconnected", r.RemoteAddr)
			return
		case <-updated:
		}
	}
}

func (s *Server) httpFrame(w http.ResponseWriter, r *http.Request, params httprouter.Params) {

	frame, _, _, _ := s.latest()

	if frame == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(frame)
}

func (s *Server) httpCounts(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sendJSON(w, s.Counts())
}

func (s *Server) httpStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {

	s.log.Infof("Stop requested by %v", r.RemoteAddr)

	if s.stop != nil {
		s.stop()
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

func sendJSON(w http.ResponseWriter, obj any) {

	b, err := json.Marshal(obj)

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}
