package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/netstack/tcpip"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"l3engine/pkg/capture"
	"l3engine/pkg/link"
	"l3engine/pkg/mbuf"
	"l3engine/pkg/packet"
	"l3engine/pkg/proto"
	"l3engine/pkg/ring"
	"l3engine/pkg/util"
)

// Back-off when the pool is empty on receive
const ALLOC_RETRY_INTERVAL = time.Millisecond

// What happened to a received buffer
type Verdict int

const (
	// freed
	VerdictDrop Verdict = iota
	// reply ready for the port
	VerdictTransmit
	// handed to a registered handler
	VerdictPass
)

func (v Verdict) String() string {
	switch v {
	case VerdictTransmit:
		return "transmit"
	case VerdictPass:
		return "pass"
	default:
		return "drop"
	}
}

// A Handler receives traffic the engine does not answer itself and owns the
// buffer afterwards.
type Handler func(*mbuf.Buf)

type Config struct {
	// Address answered for (host order)
	LocalIP uint32
	// Source of generated replies. Empty means the request's destination
	LocalMAC tcpip.LinkAddress
	// Buffers moved per port or ring call
	BurstSize int
	// Capacity of the rx and tx rings
	RingSize int
	// Number of classify stages
	Workers int
	// Answer ICMP echo requests for LocalIP
	EchoReply bool
}

type Option func(*Engine)

// Record every received and transmitted frame
func WithCapture(w *capture.Writer) Option {
	return func(e *Engine) {
		e.tap = w
	}
}

type Engine struct {
	cfg    Config
	port   link.Port
	pool   *mbuf.Pool
	logger *slog.Logger

	// port -> workers
	rx *ring.Ring
	// workers -> port
	tx *ring.Ring

	// Map for layer to handler function
	mu       sync.RWMutex
	handlers map[packet.Layer]Handler

	tap   *capture.Writer
	stats counters

	shutdownOnce sync.Once
}

// Create a new engine answering on port. Replies are allocated from pool.
func New(port link.Port, pool *mbuf.Pool, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = util.DEFAULT_BURST_SIZE
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = ring.DEFAULT_RING_CAPACITY
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:      cfg,
		port:     port,
		pool:     pool,
		logger:   logger.With("port", port.Name()),
		rx:       ring.New(port.Name()+"-rx", cfg.RingSize),
		tx:       ring.New(port.Name()+"-tx", cfg.RingSize),
		handlers: make(map[packet.Layer]Handler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.LocalMAC == "" {
		// a broadcast request would be answered from ff:ff:ff:ff:ff:ff
		e.logger.Warn("no local mac configured, arp replies use the request destination as source")
	}
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Port() link.Port {
	return e.port
}

func (e *Engine) Pool() *mbuf.Pool {
	return e.pool
}

// Number of buffers waiting in the rx and tx rings
func (e *Engine) Queued() (int, int) {
	return e.rx.Count(), e.tx.Count()
}

// Register a handler for traffic classified as l. A nil fn removes it.
func (e *Engine) Handle(l packet.Layer, fn Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn == nil {
		delete(e.handlers, l)
		return
	}
	e.handlers[l] = fn
}

func (e *Engine) handler(l packet.Layer) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[l]
	return h, ok
}

// Process decides what to do with one received buffer. IPv4 frames not
// addressed to LocalIP (and LocalMAC when set) are dropped. On VerdictTransmit
// the returned buffer is the reply to send, which may be b itself; otherwise
// b has been freed or handed to a handler and nil is returned.
func (e *Engine) Process(b *mbuf.Buf) (*mbuf.Buf, Verdict) {
	if link.IsARPRequestFor(b, e.cfg.LocalIP) {
		e.stats.arpRequests.Add(1)
		reply, err := link.BuildARPReplyAs(b, e.pool, e.cfg.LocalMAC)
		b.Free()
		if err != nil {
			if errors.Is(err, mbuf.ErrNoBuf) {
				e.stats.allocFailures.Add(1)
			}
			e.stats.dropped.Add(1)
			e.logger.Debug("arp reply dropped", "err", err)
			return nil, VerdictDrop
		}
		e.stats.arpReplies.Add(1)
		return reply, VerdictTransmit
	}

	// IPv4 meant for another host never reaches the handlers
	if t, err := packet.FiveTuple(b); err == nil && !t.IsFor(e.cfg.LocalIP, e.cfg.LocalMAC) {
		e.stats.notLocal.Add(1)
		e.drop(b, "not local")
		return nil, VerdictDrop
	}

	if e.cfg.EchoReply && proto.IsEchoRequestFor(b, e.cfg.LocalIP) && proto.MakeEchoReply(b) {
		e.stats.echoReplies.Add(1)
		return b, VerdictTransmit
	}

	l := packet.Classify(b)
	if h, ok := e.handler(l); ok {
		e.stats.passed.Add(1)
		h(b)
		return nil, VerdictPass
	}
	e.drop(b, "no handler")
	return nil, VerdictDrop
}

func (e *Engine) drop(b *mbuf.Buf, reason string) {
	e.stats.dropped.Add(1)
	if e.logger.Enabled(context.Background(), slog.LevelDebug) {
		e.logger.Debug("dropped", "reason", reason, "frame", packet.Describe(b))
	}
	b.Free()
}

func (e *Engine) record(b *mbuf.Buf) {
	if e.tap == nil {
		return
	}
	if err := e.tap.WriteBuf(b, time.Now()); err != nil {
		e.logger.Warn("capture failed", "err", err)
	}
}

// Run receives, answers and transmits until ctx is cancelled, the port is
// closed or a stage fails. Buffers still queued when it returns are freed.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		"ip", util.AddrFromUint32(e.cfg.LocalIP),
		"workers", e.cfg.Workers,
		"burst", e.cfg.BurstSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.rxLoop(ctx)
	})
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			return e.workerLoop(ctx)
		})
	}
	g.Go(func() error {
		return e.txLoop(ctx)
	})
	err := g.Wait()

	if n := e.rx.Drain() + e.tx.Drain(); n > 0 {
		e.stats.dropped.Add(uint64(n))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, link.ErrPortClosed) {
		err = nil
	}
	e.logger.Info("engine stopped", "err", err)
	return err
}

// Port -> rx ring
func (e *Engine) rxLoop(ctx context.Context) error {
	bufs := make([]*mbuf.Buf, e.cfg.BurstSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := e.port.RxBurst(bufs)
		if err != nil {
			if !errors.Is(err, mbuf.ErrNoBuf) {
				return errors.Wrap(err, "rx")
			}
			e.stats.allocFailures.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ALLOC_RETRY_INTERVAL):
			}
			continue
		}

		for i := 0; i < n; i++ {
			b := bufs[i]
			bufs[i] = nil
			e.stats.rx.Add(1)
			e.record(b)
			if err := e.rx.Enqueue(b); err != nil {
				e.stats.ringDrops.Add(1)
				e.drop(b, "rx ring full")
			}
		}
	}
}

// Rx ring -> classify -> tx ring
func (e *Engine) workerLoop(ctx context.Context) error {
	bufs := make([]*mbuf.Buf, e.cfg.BurstSize)
	for {
		n := e.rx.DequeueBurst(bufs)
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.rx.Ready():
			}
			continue
		}
		for i := 0; i < n; i++ {
			out, v := e.Process(bufs[i])
			bufs[i] = nil
			if v != VerdictTransmit {
				continue
			}
			if err := e.tx.Enqueue(out); err != nil {
				e.stats.ringDrops.Add(1)
				e.drop(out, "tx ring full")
			}
		}
	}
}

// Tx ring -> port
func (e *Engine) txLoop(ctx context.Context) error {
	bufs := make([]*mbuf.Buf, e.cfg.BurstSize)
	for {
		n := e.tx.DequeueBurst(bufs)
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.tx.Ready():
			}
			continue
		}
		for _, b := range bufs[:n] {
			e.record(b)
		}
		sent, err := e.port.TxBurst(bufs[:n])
		e.stats.tx.Add(uint64(sent))
		if err != nil {
			e.stats.txErrors.Add(1)
			for _, b := range bufs[sent:n] {
				e.stats.dropped.Add(1)
				b.Free()
			}
		}
		clear(bufs[:n])
		if err != nil {
			if errors.Is(err, link.ErrPortClosed) {
				return err
			}
			e.logger.Warn("transmit failed", "sent", sent, "queued", n, "err", err)
		}
	}
}

// Shutdown stops the port and frees whatever is still queued. A running Run
// returns once its stages notice the closed port. Calling it more than once
// is a no-op.
func (e *Engine) Shutdown() error {
	var err error
	e.shutdownOnce.Do(func() {
		err = e.port.Close()
		n := e.rx.Drain() + e.tx.Drain()
		e.stats.dropped.Add(uint64(n))
		e.logger.Info("port closed", "freed", n)
	})
	return errors.Wrap(err, "shutdown")
}
