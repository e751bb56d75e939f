package layout

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner ticks a Simulation once per frame interval on its own goroutine. It
// sleeps while the simulation is idle or settled and resumes on Wakeups.
type Runner struct {
	sim      *Simulation
	log      *slog.Logger
	onFrame  func(Frame)
	wg       sync.WaitGroup

	// interval holds at most one pending interval; setMu serializes writers.
	setMu    sync.Mutex
	interval chan time.Duration
}

// NewRunner creates a Runner. onFrame, if non-nil, receives a frame after
// every tick.
func NewRunner(sim *Simulation, interval time.Duration, onFrame func(Frame), log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		sim:      sim,
		log:      log,
		interval: make(chan time.Duration, 1),
		onFrame:  onFrame,
	}
	r.interval <- interval
	return r
}

// Start launches the tick loop. It stops when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	d := <-r.interval
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, d)
	}()
}

// SetInterval changes the frame interval. It never blocks: the latest value
// replaces any pending one, whether or not the loop is running.
func (r *Runner) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.setMu.Lock()
	defer r.setMu.Unlock()
	select {
	case <-r.interval:
	default:
	}
	select {
	case r.interval <- d:
	default:
	}
}

func (r *Runner) run(ctx context.Context, d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	running := r.sim.Phase() == PhaseSimulating

	for {
		if !running {
			ticker.Stop()
			select {
			case <-r.sim.Wakeups():
				running = true
				ticker.Reset(d)
				r.log.Debug("layout runner woke", "interval", d)
			case nd := <-r.interval:
				d = nd
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-ticker.C:
			if !r.sim.Tick() {
				running = false
				continue
			}
			if r.onFrame != nil {
				r.onFrame(r.sim.Frame())
			}
			if r.sim.Phase() != PhaseSimulating {
				running = false
			}
		case <-r.sim.Wakeups():
		case nd := <-r.interval:
			d = nd
			ticker.Reset(d)
		case <-ctx.Done():
			return
		}
	}
}

// Wait blocks until the loop has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}
