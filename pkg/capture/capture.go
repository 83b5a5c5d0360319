// Package capture records frames seen by the engine into a pcap file.
package capture

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"l3engine/pkg/mbuf"
)

const DEFAULT_SNAPLEN = 65536

// Writer appends Ethernet frames to a pcap stream. It is safe for concurrent
// use by the receive and transmit stages.
type Writer struct {
	mu      sync.Mutex
	w       *pcapgo.Writer
	closer  io.Closer
	snaplen int
	count   int
}

// Open creates (or truncates) the pcap file at path.
func Open(path string, snaplen int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "capture: create %s", path)
	}
	w, err := New(f, snaplen)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// New writes the pcap file header to w. Closing the returned Writer does not
// close w.
func New(w io.Writer, snaplen int) (*Writer, error) {
	if snaplen <= 0 {
		snaplen = DEFAULT_SNAPLEN
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(uint32(snaplen), layers.LinkTypeEthernet); err != nil {
		return nil, errors.Wrap(err, "capture: file header")
	}
	return &Writer{w: pw, snaplen: snaplen}, nil
}

// WriteBuf records the frame held by b, cut to the snap length.
func (w *Writer) WriteBuf(b *mbuf.Buf, ts time.Time) error {
	data := b.Bytes()
	if len(data) > w.snaplen {
		data = data[:w.snaplen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        max(b.PktLen(), len(data)),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return errors.New("capture: writer closed")
	}
	if err := w.w.WritePacket(ci, data); err != nil {
		return errors.Wrap(err, "capture: write packet")
	}
	w.count++
	return nil
}

// Count returns the number of frames written so far
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w = nil
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}
