package mbuf

import (
	"github.com/pkg/errors"
)

const (
	DEFAULT_POOL_SIZE = 4096
	DEFAULT_DATA_ROOM = 2048
)

// Allocator is the part of a pool that reply builders need.
type Allocator interface {
	Alloc() (*Buf, error)
}

// Pool is a fixed-capacity set of equally sized buffers.
// Alloc and Free may be called from any number of goroutines.
type Pool struct {
	name     string
	dataRoom int
	size     int
	// data rooms not handed out
	free chan []byte
}

// Create a pool of size buffers with dataRoom bytes each
func NewPool(name string, size, dataRoom int) (*Pool, error) {
	if size <= 0 {
		return nil, errors.Errorf("mbuf: pool %q: invalid size %d", name, size)
	}
	if dataRoom <= 0 {
		return nil, errors.Errorf("mbuf: pool %q: invalid data room %d", name, dataRoom)
	}
	p := &Pool{
		name:     name,
		dataRoom: dataRoom,
		size:     size,
		free:     make(chan []byte, size),
	}
	// One backing array keeps the buffers close together
	backing := make([]byte, size*dataRoom)
	for i := 0; i < size; i++ {
		p.free <- backing[i*dataRoom : (i+1)*dataRoom : (i+1)*dataRoom]
	}
	return p, nil
}

// Name of the pool
func (p *Pool) Name() string {
	return p.name
}

// Size returns the total number of buffers
func (p *Pool) Size() int {
	return p.size
}

// DataRoom returns the capacity of every buffer
func (p *Pool) DataRoom() int {
	return p.dataRoom
}

// Available returns the number of free buffers
func (p *Pool) Available() int {
	return len(p.free)
}

// InUse returns the number of buffers handed out
func (p *Pool) InUse() int {
	return p.size - len(p.free)
}

// Alloc takes one buffer out of the pool. It never blocks.
// The returned buffer has zero length. Every allocation gets a fresh handle,
// so a late Free through the handle of a previous owner cannot release the
// data room again.
func (p *Pool) Alloc() (*Buf, error) {
	select {
	case data := <-p.free:
		b := &Buf{data: data, pool: p}
		b.inUse.Store(1)
		return b, nil
	default:
		return nil, errors.Wrapf(ErrNoBuf, "pool %s", p.name)
	}
}

// AllocBulk allocates n buffers or none at all.
func (p *Pool) AllocBulk(n int) ([]*Buf, error) {
	bufs := make([]*Buf, 0, n)
	for i := 0; i < n; i++ {
		b, err := p.Alloc()
		if err != nil {
			p.FreeBulk(bufs)
			return nil, err
		}
		bufs = append(bufs, b)
	}
	return bufs, nil
}

// FromBytes allocates a buffer holding a copy of data.
func (p *Pool) FromBytes(data []byte) (*Buf, error) {
	b, err := p.Alloc()
	if err != nil {
		return nil, err
	}
	if err := b.SetLen(len(data)); err != nil {
		b.Free()
		return nil, err
	}
	copy(b.data, data)
	return b, nil
}

// FreeBulk frees every buffer in bufs. Nil entries are skipped.
func (p *Pool) FreeBulk(bufs []*Buf) {
	for _, b := range bufs {
		b.Free()
	}
}

func (p *Pool) put(b *Buf) {
	if !b.inUse.CompareAndSwap(1, 0) {
		return
	}
	p.free <- b.data
}
