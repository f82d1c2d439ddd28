// Package generator drives a synthetic I/O workload against a zbd.Job: a
// pool of workers repeatedly adjusts, "performs", and completes candidate
// I/O units, the way a load-generation engine's queue workers would.
package generator

import (
	"context"
	"sync"
	"sync/atomic"

	zbd "github.com/zbdcore/zbdadapt"
	"github.com/zbdcore/zbdadapt/internal/logging"
)

// TagState is the lifecycle of one concurrent I/O slot, mirroring the
// fetch/owned/commit states a real queue worker cycles a request through.
type TagState int32

const (
	StateAdjusting TagState = iota
	StateOwned
	StateCompleting
)

// Quiescer is the drain primitive the Adjuster's write-path synchronous
// reset calls before issuing a reset ioctl: it blocks until every tag
// currently in flight on this file has reached completion. Registered as
// a Job's quiesce func.
type Quiescer struct {
	inFlight atomic.Int64
	mu       sync.Mutex
	drain    chan struct{}
}

// NewQuiescer builds an idle Quiescer.
func NewQuiescer() *Quiescer { return &Quiescer{} }

func (q *Quiescer) enter() { q.inFlight.Add(1) }

func (q *Quiescer) leave() {
	if q.inFlight.Add(-1) != 0 {
		return
	}
	q.mu.Lock()
	if q.drain != nil {
		close(q.drain)
		q.drain = nil
	}
	q.mu.Unlock()
}

// Quiesce blocks until InFlight reaches zero.
func (q *Quiescer) Quiesce() {
	for {
		q.mu.Lock()
		if q.inFlight.Load() == 0 {
			q.mu.Unlock()
			return
		}
		if q.drain == nil {
			q.drain = make(chan struct{})
		}
		ch := q.drain
		q.mu.Unlock()
		<-ch
	}
}

// InFlight reports the current number of tags between Adjust and Complete.
// Exposed for property-based tests that stub the drain predicate.
func (q *Quiescer) InFlight() int64 { return q.inFlight.Load() }

// Op is one candidate I/O unit submitted to the generator.
type Op struct {
	FileIdx int
	IO      *zbd.IOUnit
	Verify  bool
}

// DoIO performs the actual transfer for an accepted/reserved request and
// reports whether it succeeded. The generator never inspects the data
// path itself; callers supply it (a real backend write, a loop-file
// write, or a test stub).
type DoIO func(ctx context.Context, fileIdx int, dir zbd.Direction, offset, buflen uint64) error

// Result is delivered to the caller's Results channel after a tag
// completes its full Adjust/IO/Complete cycle.
type Result struct {
	Op      Op
	Outcome zbd.AdjustOutcome
	Offset  uint64
	Buflen  uint64
	Err     error
}

// Config configures a worker pool.
type Config struct {
	Job      *zbd.Job
	Quiescer *Quiescer
	DoIO     DoIO
	Workers  int // number of concurrent tags; default 1
}

// Pool runs up to Workers concurrent tags, each independently cycling
// through StateAdjusting -> StateOwned -> StateCompleting for every Op it
// reads off its input channel.
type Pool struct {
	job      *zbd.Job
	quiescer *Quiescer
	doIO     DoIO
	workers  int

	tagStates []atomic.Int32

	results chan Result
}

// NewPool builds a Pool. If cfg.Quiescer is nil, a fresh one is created
// for the Pool's own in-flight accounting; the Pool does not expose it,
// so cfg.Job's quiesce hook cannot be wired to it.
func NewPool(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	q := cfg.Quiescer
	if q == nil {
		q = NewQuiescer()
	}
	return &Pool{
		job:       cfg.Job,
		quiescer:  q,
		doIO:      cfg.DoIO,
		workers:   workers,
		tagStates: make([]atomic.Int32, workers),
		results:   make(chan Result, workers),
	}
}

// Results returns the channel tag completions are delivered on. After
// Run returns it holds every Result of that run and is closed.
func (p *Pool) Results() <-chan Result { return p.results }

// Run consumes ops from in until ctx is done or in is closed, fanning
// work out across the pool's workers. Results are collected while the
// workers run, so Run never blocks on an unread Results channel; once
// every worker has stopped, Results is refilled with them and closed.
func (p *Pool) Run(ctx context.Context, in <-chan Op) {
	var collected []Result
	collectorDone := make(chan struct{})
	go func(out <-chan Result) {
		for r := range out {
			collected = append(collected, r)
		}
		close(collectorDone)
	}(p.results)

	var wg sync.WaitGroup
	for tag := 0; tag < p.workers; tag++ {
		wg.Add(1)
		go func(tag int) {
			defer wg.Done()
			p.worker(ctx, tag, in)
		}(tag)
	}
	wg.Wait()
	close(p.results)
	<-collectorDone

	p.results = make(chan Result, len(collected))
	for _, r := range collected {
		p.results <- r
	}
	close(p.results)
}

func (p *Pool) worker(ctx context.Context, tag int, in <-chan Op) {
	for {
		select {
		case <-ctx.Done():
			return
		case op, ok := <-in:
			if !ok {
				return
			}
			p.runOne(ctx, tag, op)
		}
	}
}

// runOne must not hold the quiescer's in-flight count across the
// AdjustBlock call: Adjust's write-path reset branch calls quiesce(),
// which blocks until in-flight reaches zero, so a tag counted as
// in-flight during its own Adjust call would wait on itself forever.
// The count only brackets the DoIO+Complete window, the part quiesce()
// actually needs drained.
func (p *Pool) runOne(ctx context.Context, tag int, op Op) {
	p.tagStates[tag].Store(int32(StateAdjusting))
	res := p.job.AdjustBlock(op.FileIdx, op.IO, op.Verify)
	if res.Outcome == zbd.Eof {
		p.results <- Result{Op: op, Outcome: res.Outcome}
		return
	}

	p.quiescer.enter()
	defer p.quiescer.leave()

	p.tagStates[tag].Store(int32(StateOwned))
	var ioErr error
	if p.doIO != nil {
		ioErr = p.doIO(ctx, op.FileIdx, op.IO.Dir, res.Offset, res.Buflen)
	}
	success := ioErr == nil

	p.tagStates[tag].Store(int32(StateCompleting))
	if res.Reservation != nil {
		p.job.CompleteBlock(op.FileIdx, res.Reservation, op.IO.Dir, res.Offset, res.Buflen, success)
	}

	if ioErr != nil {
		logging.Warn("generator op failed", "file", op.FileIdx, "dir", op.IO.Dir, "err", ioErr)
	}

	p.results <- Result{Op: op, Outcome: res.Outcome, Offset: res.Offset, Buflen: res.Buflen, Err: ioErr}
}

// TagState reports the current lifecycle state of a worker slot.
func (p *Pool) TagState(tag int) TagState {
	return TagState(p.tagStates[tag].Load())
}
