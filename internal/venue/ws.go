package venue

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
	"github.com/arbscan/arbscan/internal/telemetry"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	// keepaliveInterval sits inside every supported venue's heartbeat window
	// (bybit 20 s, mexc 30 s); the 5 s write timeout bounds dead-peer detection.
	keepaliveInterval = 15 * time.Second
	maxFrameBytes     = 512 * 1024
)

// ParseFunc normalizes one inbound frame. ok=false skips non-quote frames
// (acks, pongs, heartbeats). A returned error drops the frame as invalid,
// except CodeVenueRejected which terminates the stream without retry.
type ParseFunc func(data []byte) (schema.TopOfBook, bool, error)

// StreamConfig describes one websocket subscription attempt.
type StreamConfig struct {
	Venue  schema.VenueID
	Symbol schema.Symbol
	Kind   schema.StreamKind
	URL    string
	// Subscribe frames are written once after the dial.
	Subscribe [][]byte
	// PingFrame substitutes the venue's text heartbeat for protocol pings.
	PingFrame []byte
	Parse     ParseFunc
	Logger    zerolog.Logger
}

var (
	metricsOnce   sync.Once
	quoteCounter  metric.Int64Counter
	invalidCount  metric.Int64Counter
)

func streamMetrics() (metric.Int64Counter, metric.Int64Counter) {
	metricsOnce.Do(func() {
		meter := otel.Meter("venue")
		quoteCounter, _ = meter.Int64Counter("ingest.quotes",
			metric.WithDescription("Normalized quotes emitted by venue streams"),
			metric.WithUnit("{quote}"))
		invalidCount, _ = meter.Int64Counter("ingest.messages.invalid",
			metric.WithDescription("Venue frames dropped as undecodable"),
			metric.WithUnit("{message}"))
	})
	return quoteCounter, invalidCount
}

// wsStream is a single-subscription stream over one websocket connection.
// It never reconnects; the supervised stream task owns that loop.
type wsStream struct {
	cfg    StreamConfig
	conn   *websocket.Conn
	quotes chan schema.TopOfBook
	errc   chan error
	cancel context.CancelFunc

	closeOnce sync.Once
}

// OpenStream dials, subscribes, and starts the read and keepalive loops.
func OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, cfg.URL, nil)
	cancelDial()
	if err != nil {
		return nil, errs.New(string(cfg.Venue), errs.CodeNetwork,
			errs.WithMessage("dial "+cfg.URL), errs.WithCause(err))
	}
	conn.SetReadLimit(maxFrameBytes)

	for _, frame := range cfg.Subscribe {
		writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, frame)
		cancelWrite()
		if err != nil {
			_ = conn.CloseNow()
			return nil, errs.New(string(cfg.Venue), errs.CodeNetwork,
				errs.WithMessage("subscribe write failed"), errs.WithCause(err))
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &wsStream{
		cfg:    cfg,
		conn:   conn,
		quotes: make(chan schema.TopOfBook, 16),
		errc:   make(chan error, 1),
		cancel: cancel,
	}
	go s.readLoop(streamCtx)
	go s.keepalive(streamCtx)
	return s, nil
}

func (s *wsStream) Quotes() <-chan schema.TopOfBook { return s.quotes }
func (s *wsStream) Err() <-chan error               { return s.errc }

// Close cancels the stream. Safe to call more than once.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "shutdown")
	})
	return nil
}

func (s *wsStream) readLoop(ctx context.Context) {
	defer close(s.quotes)
	defer func() { _ = s.conn.CloseNow() }()

	quotesMetric, invalidMetric := streamMetrics()
	attrs := metric.WithAttributes(telemetry.StreamAttributes(
		string(s.cfg.Venue), string(s.cfg.Symbol), string(s.cfg.Kind))...)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(errs.New(string(s.cfg.Venue), errs.CodeTransientStream,
				errs.WithMessage("stream read failed"), errs.WithCause(err)))
			return
		}

		tob, ok, perr := s.cfg.Parse(data)
		if perr != nil {
			if errs.CodeOf(perr) == errs.CodeVenueRejected {
				s.fail(perr)
				return
			}
			if invalidMetric != nil {
				invalidMetric.Add(ctx, 1, attrs)
			}
			s.cfg.Logger.Debug().Err(perr).Str("symbol", string(s.cfg.Symbol)).Msg("dropping undecodable frame")
			continue
		}
		if !ok {
			continue
		}

		// The subscription, not the payload, is the source of identity.
		tob.Venue = s.cfg.Venue
		tob.Symbol = s.cfg.Symbol
		if tob.Timestamp == 0 {
			tob.Timestamp = time.Now().UnixMilli()
		}
		if !tob.Valid() {
			continue
		}

		select {
		case s.quotes <- tob:
			if quotesMetric != nil {
				quotesMetric.Add(ctx, 1, attrs)
			}
		case <-ctx.Done():
			return
		}
	}
}

// keepalive probes the transport while the stream is quiet. Venues with an
// application-level heartbeat get their text frame; everyone else gets a
// protocol ping, which also verifies the peer answers.
func (s *wsStream) keepalive(ctx context.Context) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			var err error
			if s.cfg.PingFrame != nil {
				err = s.conn.Write(pingCtx, websocket.MessageText, s.cfg.PingFrame)
			} else {
				err = s.conn.Ping(pingCtx)
			}
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					// Surface through the read loop by tearing the transport down.
					_ = s.conn.CloseNow()
				}
				return
			}
		}
	}
}

func (s *wsStream) fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}
