package link

import (
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"l3engine/pkg/mbuf"
)

const DEFAULT_POLL_INTERVAL = 100 * time.Millisecond

var ErrPortClosed = errors.New("link: port closed")

// A Port moves Ethernet frames in bursts.
//
// RxBurst fills bufs with received frames and returns how many it wrote; the
// caller owns them afterwards. TxBurst sends bufs in order and returns how
// many were sent; sent buffers are freed by the port, the rest stay with the
// caller.
type Port interface {
	Name() string
	RxBurst(bufs []*mbuf.Buf) (int, error)
	TxBurst(bufs []*mbuf.Buf) (int, error)
	Close() error
}

// UDPPort is a virtual link: every UDP datagram carries one Ethernet frame.
// Frames are received on a local address and sent to a single peer.
type UDPPort struct {
	name string
	conn *net.UDPConn
	peer *net.UDPAddr
	pool *mbuf.Pool
	poll time.Duration

	// datagrams that filled the whole data room
	oversized atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// Bind a UDP port on listen that sends to peer. Received frames are copied
// into buffers from pool.
func OpenUDPPort(name string, listen, peer netip.AddrPort, pool *mbuf.Pool, poll time.Duration) (*UDPPort, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(listen))
	if err != nil {
		return nil, errors.Wrapf(err, "port %s: listen on %s", name, listen)
	}
	if poll <= 0 {
		poll = DEFAULT_POLL_INTERVAL
	}
	return &UDPPort{
		name:   name,
		conn:   conn,
		peer:   net.UDPAddrFromAddrPort(peer),
		pool:   pool,
		poll:   poll,
		closed: make(chan struct{}),
	}, nil
}

func (p *UDPPort) Name() string {
	return p.name
}

// Local address the port listens on
func (p *UDPPort) LocalAddr() netip.AddrPort {
	return p.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Number of datagrams dropped because they did not fit in a buffer
func (p *UDPPort) Oversized() uint64 {
	return p.oversized.Load()
}

// RxBurst waits up to the poll interval for a frame. It returns 0 and no
// error when nothing arrived, so callers can check for cancellation.
// A datagram that fills the whole data room may have been cut short by the
// read and is dropped.
func (p *UDPPort) RxBurst(bufs []*mbuf.Buf) (int, error) {
	if len(bufs) == 0 {
		return 0, nil
	}
	select {
	case <-p.closed:
		return 0, ErrPortClosed
	default:
	}

	b, err := p.pool.Alloc()
	if err != nil {
		// no buffer means the frame would be dropped anyway, leave it queued
		return 0, err
	}
	raw := b.Raw()
	if err := p.conn.SetReadDeadline(time.Now().Add(p.poll)); err != nil {
		b.Free()
		return 0, errors.Wrapf(err, "port %s", p.name)
	}
	n, _, err := p.conn.ReadFromUDPAddrPort(raw)
	if err != nil {
		b.Free()
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil
		}
		select {
		case <-p.closed:
			return 0, ErrPortClosed
		default:
		}
		return 0, errors.Wrapf(err, "port %s: read", p.name)
	}
	if n == len(raw) {
		b.Free()
		p.oversized.Add(1)
		return 0, nil
	}
	if err := b.SetLen(n); err != nil {
		b.Free()
		return 0, err
	}
	bufs[0] = b
	return 1, nil
}

// TxBurst writes every frame as one datagram to the peer.
func (p *UDPPort) TxBurst(bufs []*mbuf.Buf) (int, error) {
	select {
	case <-p.closed:
		return 0, ErrPortClosed
	default:
	}
	for i, b := range bufs {
		if _, err := p.conn.WriteToUDP(b.Bytes(), p.peer); err != nil {
			return i, errors.Wrapf(err, "port %s: write", p.name)
		}
		b.Free()
	}
	return len(bufs), nil
}

// Close stops the port. Blocked receives return ErrPortClosed.
func (p *UDPPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
	})
	return err
}
