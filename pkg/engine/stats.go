package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Snapshot of the engine counters
type Stats struct {
	Rx            uint64
	Tx            uint64
	ARPRequests   uint64
	ARPReplies    uint64
	EchoReplies   uint64
	Passed        uint64
	NotLocal      uint64
	Dropped       uint64
	AllocFailures uint64
	RingDrops     uint64
	TxErrors      uint64
}

type counters struct {
	rx            atomic.Uint64
	tx            atomic.Uint64
	arpRequests   atomic.Uint64
	arpReplies    atomic.Uint64
	echoReplies   atomic.Uint64
	passed        atomic.Uint64
	notLocal      atomic.Uint64
	dropped       atomic.Uint64
	allocFailures atomic.Uint64
	ringDrops     atomic.Uint64
	txErrors      atomic.Uint64
}

func (e *Engine) Stats() Stats {
	c := &e.stats
	return Stats{
		Rx:            c.rx.Load(),
		Tx:            c.tx.Load(),
		ARPRequests:   c.arpRequests.Load(),
		ARPReplies:    c.arpReplies.Load(),
		EchoReplies:   c.echoReplies.Load(),
		Passed:        c.passed.Load(),
		NotLocal:      c.notLocal.Load(),
		Dropped:       c.dropped.Load(),
		AllocFailures: c.allocFailures.Load(),
		RingDrops:     c.ringDrops.Load(),
		TxErrors:      c.txErrors.Load(),
	}
}

func (s Stats) String() string {
	var b strings.Builder
	row := func(name string, v uint64) {
		b.WriteString(fmt.Sprintf("%-15s %d\n", name, v))
	}
	row("rx", s.Rx)
	row("tx", s.Tx)
	row("arp requests", s.ARPRequests)
	row("arp replies", s.ARPReplies)
	row("echo replies", s.EchoReplies)
	row("passed", s.Passed)
	row("not local", s.NotLocal)
	row("dropped", s.Dropped)
	row("alloc failures", s.AllocFailures)
	row("ring drops", s.RingDrops)
	row("tx errors", s.TxErrors)
	return b.String()
}
