package activity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/kbpulse/internal/stream"
	"github.com/Aman-CERP/kbpulse/internal/watcher"
)

// DefaultSignalBuffer bounds signals waiting for the worker.
const DefaultSignalBuffer = 256

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("activity service closed")

// ChangeSource is the detector side of the pipeline.
type ChangeSource interface {
	Subscribe(h watcher.SignalHandler) (unsubscribe func())
}

// Metrics receives pipeline counters. Implementations must not block.
type Metrics interface {
	RecordEmitted(kind, slug string)
	RecordSuppressed(kind string)
	SignalDropped()
	NormalizeFailed()
	StreamOpened()
	StreamClosed()
}

type nopMetrics struct{}

func (nopMetrics) RecordEmitted(string, string) {}
func (nopMetrics) RecordSuppressed(string)      {}
func (nopMetrics) SignalDropped()               {}
func (nopMetrics) NormalizeFailed()             {}
func (nopMetrics) StreamOpened()                {}
func (nopMetrics) StreamClosed()                {}

// Service owns the backlog, the last signature and the subscriber pipeline.
type Service struct {
	changes     ChangeSource
	normalizer  *Normalizer
	broadcaster *stream.Broadcaster
	logger      *slog.Logger
	metrics     Metrics

	backlogSize int
	bufferSize  int
	generation  GenerationFunc
	now         func() time.Time

	signals chan watcher.Signal
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// mu orders backlog acceptance with publishing, and replay with
	// subscription, so a new connection sees replayed records before live ones.
	mu      sync.Mutex
	backlog *Backlog
	closed  bool

	connMu  sync.Mutex
	conns   map[*Connection]struct{}
	unwatch func()

	closeOnce sync.Once
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithBacklogSize sets how many records are replayed.
func WithBacklogSize(n int) ServiceOption {
	return func(s *Service) { s.backlogSize = n }
}

// WithSignalBuffer sets the worker queue length.
func WithSignalBuffer(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithMetrics installs a metrics hook.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGeneration stamps records with the search dataset generation.
func WithGeneration(fn GenerationFunc) ServiceOption {
	return func(s *Service) { s.generation = fn }
}

// WithServiceClock overrides the clock used for deleted records.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a service and starts its worker. Close stops it.
func NewService(changes ChangeSource, source MetadataSource, b *stream.Broadcaster, opts ...ServiceOption) *Service {
	s := &Service{
		changes:     changes,
		broadcaster: b,
		logger:      slog.Default(),
		metrics:     nopMetrics{},
		backlogSize: DefaultBacklogSize,
		bufferSize:  DefaultSignalBuffer,
		now:         time.Now,
		conns:       make(map[*Connection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.normalizer = NewNormalizer(source, s.generation, s.now)
	s.backlog = NewBacklog(s.backlogSize)
	s.signals = make(chan watcher.Signal, s.bufferSize)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.run()
	return s
}

// HandleSignal queues sig for the worker. It never blocks; a full queue
// drops the signal.
func (s *Service) HandleSignal(sig watcher.Signal) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.signals <- sig:
	default:
		s.metrics.SignalDropped()
		s.logger.Warn("activity queue full, dropping signal",
			slog.String("slug", sig.Slug),
			slog.String("kind", sig.Kind.String()))
	}
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case sig := <-s.signals:
			s.process(sig)
		}
	}
}

func (s *Service) process(sig watcher.Signal) {
	rec, err := s.normalizer.Normalize(s.ctx, sig)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.metrics.NormalizeFailed()
		s.logger.Warn("failed to resolve article change",
			slog.String("slug", sig.Slug),
			slog.String("error", err.Error()))
		return
	}
	s.Emit(rec)
}

// Emit accepts rec into the backlog and, unless it repeats the previous
// record, publishes it. It reports whether rec was published.
func (s *Service) Emit(rec Record) bool {
	ev, err := rec.Event()
	if err != nil {
		s.logger.Error("failed to encode activity record",
			slog.String("slug", rec.Slug),
			slog.String("error", err.Error()))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if !s.backlog.Accept(rec) {
		s.metrics.RecordSuppressed(string(rec.Kind))
		return false
	}
	n := s.broadcaster.Publish(ev)
	s.metrics.RecordEmitted(string(rec.Kind), rec.Slug)
	s.logger.Debug("activity published",
		slog.String("kind", string(rec.Kind)),
		slog.String("slug", rec.Slug),
		slog.Int("subscribers", n))
	return true
}

// ConnectOptions controls a new connection.
type ConnectOptions struct {
	// Replay sends the backlog before live records.
	Replay bool
}

// Connection is one live subscriber.
type Connection struct {
	s    *Service
	sub  *stream.Subscription
	once sync.Once
}

// Connect subscribes sub to live records, replaying the backlog first when
// requested.
func (s *Service) Connect(sub stream.Subscriber, opts ConnectOptions) (*Connection, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	subscription, err := s.broadcaster.Subscribe(sub)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if opts.Replay {
		for _, rec := range s.backlog.Snapshot() {
			ev, err := rec.Event()
			if err != nil {
				continue
			}
			if err := sub.Send(ev); err != nil {
				s.logger.Debug("replay write failed", slog.String("error", err.Error()))
			}
		}
	}

	c := &Connection{s: s, sub: subscription}
	s.connMu.Lock()
	if len(s.conns) == 0 {
		s.unwatch = s.changes.Subscribe(s)
	}
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
	s.mu.Unlock()

	s.metrics.StreamOpened()
	s.logger.Debug("stream connected", slog.Bool("replay", opts.Replay))
	return c, nil
}

// Done is closed when the connection is torn down from either side.
func (c *Connection) Done() <-chan struct{} {
	return c.sub.Done()
}

// Close unsubscribes the connection. The last close releases the watch.
// Idempotent.
func (c *Connection) Close() {
	c.once.Do(func() {
		c.sub.Unsubscribe()

		s := c.s
		s.connMu.Lock()
		delete(s.conns, c)
		var unwatch func()
		if len(s.conns) == 0 {
			unwatch, s.unwatch = s.unwatch, nil
		}
		s.connMu.Unlock()
		if unwatch != nil {
			unwatch()
		}

		s.metrics.StreamClosed()
		s.logger.Debug("stream disconnected")
	})
}

// Connections returns the number of open connections.
func (s *Service) Connections() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.conns)
}

// Backlog returns the retained records oldest first.
func (s *Service) Backlog() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog.Snapshot()
}

// Reset clears the backlog and the last signature.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog.Reset()
}

// Close stops the worker and disconnects every connection.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()

		s.connMu.Lock()
		conns := make([]*Connection, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.connMu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
}
