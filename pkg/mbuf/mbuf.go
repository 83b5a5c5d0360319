package mbuf

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	// Pool has no free buffer left
	ErrNoBuf = errors.New("mbuf: not enough buffers")
	// Offset lies outside the logical data
	ErrBadOffset = errors.New("mbuf: offset exceeds buffer length")
	// Requested range does not fit in the buffer
	ErrOutOfBuffer = errors.New("mbuf: size exceeds remaining buffer length")
	// Resize request could not be honored
	ErrNotResized = errors.New("mbuf: buffer not resized")
)

// A Buf is a single-segment packet buffer handed out by a Pool.
//
// The data room has a fixed capacity. Len is the number of leading bytes that
// hold frame data, PktLen is the length reported to peers. A Buf has exactly
// one owner at a time; it must not be touched after Free.
type Buf struct {
	data    []byte
	dataLen int
	pktLen  int
	pool    *Pool
	// 1 until freed, then 0 for good
	inUse atomic.Int32
}

// Len returns the amount of frame data stored in the buffer
func (b *Buf) Len() int {
	return b.dataLen
}

// PktLen returns the total packet length
func (b *Buf) PktLen() int {
	return b.pktLen
}

// Cap returns the size of the data room
func (b *Buf) Cap() int {
	return len(b.data)
}

// Raw returns the whole data room regardless of the logical length.
func (b *Buf) Raw() []byte {
	return b.data
}

// Bytes returns the valid frame data. The slice aliases the buffer.
func (b *Buf) Bytes() []byte {
	return b.data[:b.dataLen]
}

// Pool returns the pool the buffer belongs to
func (b *Buf) Pool() *Pool {
	return b.pool
}

// SetLen sets both the logical and the total length to n.
func (b *Buf) SetLen(n int) error {
	if n < 0 || n > len(b.data) {
		return errors.Wrapf(ErrOutOfBuffer, "length %d, capacity %d", n, len(b.data))
	}
	b.dataLen = n
	b.pktLen = n
	return nil
}

// Returns the amount of bytes left after the frame data
func (b *Buf) tailroom() int {
	return len(b.data) - b.dataLen
}

// Extend makes room for n bytes at offset. Data after offset is shifted down.
func (b *Buf) Extend(offset, n int) error {
	if n <= 0 || offset < 0 || offset > b.dataLen || n > b.tailroom() {
		return errors.Wrapf(ErrNotResized, "extend %d bytes at %d", n, offset)
	}
	if toCopy := b.dataLen - offset; toCopy > 0 {
		copy(b.data[offset+n:], b.data[offset:b.dataLen])
	}
	b.dataLen += n
	b.pktLen += n
	return nil
}

// Shrink removes n bytes at offset. Data after the removed range moves up.
func (b *Buf) Shrink(offset, n int) error {
	if n <= 0 || offset < 0 || offset+n > b.dataLen {
		return errors.Wrapf(ErrNotResized, "shrink %d bytes at %d", n, offset)
	}
	copy(b.data[offset:], b.data[offset+n:b.dataLen])
	b.dataLen -= n
	b.pktLen -= n
	return nil
}

// Resize grows (n > 0) or shrinks (n < 0) the data at offset.
func (b *Buf) Resize(offset, n int) error {
	if n < 0 {
		return b.Shrink(offset, -n)
	}
	return b.Extend(offset, n)
}

// Truncate cuts the frame data down to n bytes.
func (b *Buf) Truncate(n int) error {
	if n < 0 || n >= b.dataLen {
		return errors.Wrapf(ErrNotResized, "truncate %d to %d", b.dataLen, n)
	}
	b.dataLen = n
	b.pktLen = n
	return nil
}

// Read returns a view of n bytes starting at offset.
func (b *Buf) Read(offset, n int) ([]byte, error) {
	if offset < 0 || offset >= b.dataLen {
		return nil, errors.Wrapf(ErrBadOffset, "offset %d, length %d", offset, b.dataLen)
	}
	if n < 0 || offset+n > b.dataLen {
		return nil, errors.Wrapf(ErrOutOfBuffer, "size %d, remaining %d", n, b.dataLen-offset)
	}
	return b.data[offset : offset+n], nil
}

// Write copies p into the frame data at offset. Call Extend first when the
// write would go past the current length.
func (b *Buf) Write(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > b.dataLen {
		return errors.Wrapf(ErrOutOfBuffer, "size %d at %d, length %d", len(p), offset, b.dataLen)
	}
	copy(b.data[offset:], p)
	return nil
}

// Free gives the data room back to its pool. Freeing the same handle again
// does nothing, even after the data room has been allocated to someone else.
func (b *Buf) Free() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.put(b)
}

func (b *Buf) String() string {
	return fmt.Sprintf("mbuf{pool=%s cap=%d pkt_len=%d data_len=%d}", b.pool.Name(), len(b.data), b.pktLen, b.dataLen)
}
