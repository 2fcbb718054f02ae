package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Pool runs named jobs on a fixed number of goroutines, in deadline order.
// A job is a function returning the next time it wants to run; returning the
// zero time removes the job from the pool. Watch-mode build workers live
// here: each worker is one job whose deadline is its next scheduled build,
// and file-change notifications pull the deadline forward with Trigger.
type Pool struct {
	mu    sync.Mutex
	queue []*job
	reg   map[string]*job
	wait  chan struct{}
}

type job struct {
	name     string
	fn       func(context.Context) time.Time
	deadline time.Time
	rerun    bool
}

func New(workers int) *Pool {
	pool := Pool{reg: make(map[string]*job)}

	for range workers {
		go pool.work()
	}

	return &pool
}

// Add schedules fn under name with an immediate first run.
func (p *Pool) Add(name string, fn func(context.Context) time.Time) {
	p.enqueue(&job{name: name, fn: fn, deadline: time.Now()})
}

func (p *Pool) work() {
	for {
		ctx := context.Background()
		p.enqueue(p.dequeue().execute(ctx))
	}
}

// Trigger runs the named job now. A queued job is pulled to the front of the
// queue regardless of its deadline. A job absent from the queue is currently
// executing; it is flagged to re-run immediately after the current run, and
// later runs revert to the deadlines its fn returns.
func (p *Pool) Trigger(n string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.IndexFunc(p.queue, func(j *job) bool { return j.name == n }); i != -1 {
		p.queue[i].deadline = time.Now()
		p.sortAndWake()
		return nil
	}
	if j, ok := p.reg[n]; ok {
		j.rerun = true
		return nil
	}

	return fmt.Errorf("no job with name %s", n)
}

// sortAndWake must be called with p.mu held.
func (p *Pool) sortAndWake() {
	slices.SortFunc(p.queue, func(a, b *job) int {
		return a.deadline.Compare(b.deadline)
	})

	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}

func (p *Pool) enqueue(j *job) {
	if j.deadline.IsZero() {
		// The job asked to be removed from the pool.
		delete(p.reg, j.name)
		return
	}

	p.mu.Lock()
	p.reg[j.name] = j
	p.queue = append(p.queue, j)
	p.sortAndWake()
	p.mu.Unlock()
}

func (p *Pool) dequeue() *job {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		var j *job
		if len(p.queue) == 0 {
			// Nothing queued; park on a far future deadline until woken.
			j = &job{name: "idle", deadline: time.Now().Add(time.Hour * 24 * 365)}
		} else {
			j = p.queue[0]
		}

		if j.deadline.After(time.Now()) {
			// Not ready yet. Wait for the deadline or for an earlier job to
			// arrive.
			if p.wait == nil {
				p.wait = make(chan struct{})
			}

			wait := p.wait

			p.mu.Unlock()

			select {
			case <-time.After(time.Until(j.deadline)):
			case <-wait:
			}

			p.mu.Lock()
			continue
		}

		break
	}

	var j *job
	j, p.queue = p.queue[0], p.queue[1:]
	return j
}

func (j *job) execute(ctx context.Context) *job {
	j.deadline = j.fn(ctx)
	if j.rerun {
		j.rerun = false
		j.deadline = time.Now()
	}
	return j
}
