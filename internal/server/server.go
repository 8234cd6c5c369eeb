// Package server exposes the thin HTTP and websocket surface over the
// publisher: on-demand finder runs for request/response callers and bus
// subscriptions bridged onto websockets for streaming consumers.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/arbscan/arbscan/internal/publish"
)

const (
	spatialPath   = "/api/v1/arbitrage/cex_cex"
	cyclicPath    = "/api/v1/arbitrage/cex_cex_cex"
	spatialWSPath = "/api/v1/ws/arbitrage/cex_cex"
	cyclicWSPath  = "/api/v1/ws/arbitrage/cex_cex_cex"
	healthPath    = "/healthz"

	wsWriteTimeout = 5 * time.Second
)

type server struct {
	pub    *publish.Publisher
	bus    *publish.Bus
	logger zerolog.Logger
}

// NewHandler builds the API mux over the publisher and its bus.
func NewHandler(pub *publish.Publisher, bus *publish.Bus, logger zerolog.Logger) http.Handler {
	s := &server{pub: pub, bus: bus, logger: logger.With().Str("component", "server").Logger()}
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, s.health)
	mux.Handle(spatialPath, s.get(s.spatialNow))
	mux.Handle(cyclicPath, s.get(s.cyclicNow))
	mux.Handle(spatialWSPath, s.get(s.stream(publish.FeedSpatial)))
	mux.Handle(cyclicWSPath, s.get(s.stream(publish.FeedCyclic)))
	return mux
}

func (s *server) get(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) spatialNow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pub.SpatialNow(r.Context()))
}

func (s *server) cyclicNow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pub.CyclicNow(r.Context()))
}

// stream upgrades the request and forwards every published batch for the feed
// until either side goes away.
func (s *server) stream(feed publish.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.Debug().Err(err).Str("feed", string(feed)).Msg("websocket upgrade failed")
			return
		}
		defer func() { _ = conn.CloseNow() }()

		id, payloads := s.bus.Subscribe(feed)
		defer s.bus.Unsubscribe(id)

		// The client sends nothing meaningful; CloseRead surfaces its
		// departure through context cancellation.
		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "bye")
				return
			case payload, ok := <-payloads:
				if !ok {
					_ = conn.Close(websocket.StatusGoingAway, "publisher shut down")
					return
				}
				writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
				err := conn.Write(writeCtx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; a failed encode has no recovery.
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
