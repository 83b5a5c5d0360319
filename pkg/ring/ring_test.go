package ring

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l3engine/pkg/mbuf"
)

func allocN(t *testing.T, p *mbuf.Pool, n int) []*mbuf.Buf {
	t.Helper()
	bufs, err := p.AllocBulk(n)
	require.NoError(t, err)
	return bufs
}

func TestFIFOOrder(t *testing.T) {
	p, err := mbuf.NewPool("ring", 8, 32)
	require.NoError(t, err)
	r := New("E2P", 4)
	bufs := allocN(t, p, 3)

	for _, b := range bufs {
		require.NoError(t, r.Enqueue(b))
	}
	assert.Equal(t, 3, r.Count())

	for _, want := range bufs {
		got, err := r.Dequeue()
		require.NoError(t, err)
		assert.Same(t, want, got)
	}
	_, err = r.Dequeue()
	assert.True(t, errors.Is(err, ErrRingEmpty))
}

func TestFullRing(t *testing.T) {
	p, _ := mbuf.NewPool("ring", 8, 32)
	r := New("P2E", 2)
	bufs := allocN(t, p, 3)

	require.NoError(t, r.Enqueue(bufs[0]))
	require.NoError(t, r.Enqueue(bufs[1]))
	err := r.Enqueue(bufs[2])
	assert.True(t, errors.Is(err, ErrRingFull))
	assert.Equal(t, 2, r.Capacity())
}

func TestEnqueueBulkAllOrNothing(t *testing.T) {
	p, _ := mbuf.NewPool("ring", 8, 32)
	r := New("bulk", 4)

	require.NoError(t, r.EnqueueBulk(allocN(t, p, 3)))
	err := r.EnqueueBulk(allocN(t, p, 2))
	assert.True(t, errors.Is(err, ErrRingFull))
	assert.Equal(t, 3, r.Count())
}

func TestDequeueBurstWrapAround(t *testing.T) {
	p, _ := mbuf.NewPool("ring", 8, 32)
	r := New("wrap", 3)
	bufs := allocN(t, p, 5)

	require.NoError(t, r.EnqueueBulk(bufs[:3]))
	out := make([]*mbuf.Buf, 2)
	assert.Equal(t, 2, r.DequeueBurst(out))
	assert.Same(t, bufs[0], out[0])

	// wraps past the end of the slot array
	require.NoError(t, r.EnqueueBulk(bufs[3:5]))
	out = make([]*mbuf.Buf, 8)
	n := r.DequeueBurst(out)
	require.Equal(t, 3, n)
	assert.Same(t, bufs[2], out[0])
	assert.Same(t, bufs[3], out[1])
	assert.Same(t, bufs[4], out[2])
}

func TestReadyAndDrain(t *testing.T) {
	p, _ := mbuf.NewPool("ring", 4, 32)
	r := New("drain", 4)
	require.NoError(t, r.EnqueueBulk(allocN(t, p, 4)))

	select {
	case <-r.Ready():
	default:
		t.Fatalf("Ready not signalled after enqueue")
	}

	assert.Equal(t, 4, r.Drain())
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 4, p.Available())
}
