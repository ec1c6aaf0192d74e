// Package reconcile owns the mapping from declared restream state to
// running forwarder processes, converging one toward the other every time
// the restream list changes.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// params is everything a worker needs to (re)start: its source and the
// current set of enabled destinations. Two params are considered equal by
// the pool when their marshaled form matches.
type params struct {
	src  *url.URL
	dsts []*url.URL
}

func (p params) equal(other params) bool {
	if len(p.dsts) != len(other.dsts) {
		return false
	}
	if p.src.String() != other.src.String() {
		return false
	}
	for i, d := range p.dsts {
		if d.String() != other.dsts[i].String() {
			return false
		}
	}
	return true
}

// CommandBuilder builds the *exec.Cmd for one worker invocation, given the
// current params. Swappable so tests don't need to spawn real ffmpeg.
type CommandBuilder func(ctx context.Context, p params) *exec.Cmd

func defaultCommandBuilder(ffmpegPath string) CommandBuilder {
	return func(ctx context.Context, p params) *exec.Cmd {
		args := []string{"-re", "-i", p.src.String()}
		for _, d := range p.dsts {
			args = append(args, "-c", "copy", "-f", "flv", d.String())
		}
		return exec.CommandContext(ctx, ffmpegPath, args...)
	}
}

// worker supervises one forwarder child process, restarting it with
// exponential backoff when it exits abnormally.
type worker struct {
	key     string
	log     *slog.Logger
	build   CommandBuilder
	cancel  context.CancelFunc
	paramCh chan params
	done    chan struct{}

	mu   sync.Mutex
	last params // the most recently requested (not necessarily yet-running) params
}

func startWorker(ctx context.Context, key string, p params, build CommandBuilder, log *slog.Logger) *worker {
	wctx, cancel := context.WithCancel(ctx)
	w := &worker{
		key:     key,
		log:     log,
		build:   build,
		cancel:  cancel,
		paramCh: make(chan params, 1),
		done:    make(chan struct{}),
		last:    p,
	}
	w.paramCh <- p
	go w.run(wctx)
	return w
}

// lastParams reports the params this worker was most recently asked to run,
// regardless of whether the child process has picked them up yet.
func (w *worker) lastParams() params {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// restart queues new params for the worker's next run. Non-blocking: if a
// restart is already pending, it is replaced by the newer one.
func (w *worker) restart(p params) {
	w.mu.Lock()
	w.last = p
	w.mu.Unlock()

	select {
	case <-w.paramCh:
	default:
	}
	select {
	case w.paramCh <- p:
	default:
	}
}

// stop terminates the worker and does not return until its goroutine has
// exited.
func (w *worker) stop() {
	w.cancel()
	<-w.done
}

const (
	backoffInitial = time.Second
	backoffMax     = 30 * time.Second
	stableRun      = 10 * time.Second
)

func newWorkerBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffInitial
	bo.MaxInterval = backoffMax
	bo.MaxElapsedTime = 0 // never give up; the pool controls the worker's lifetime
	return bo
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)

	current := <-w.paramCh
	bo := newWorkerBackoff()

	for {
		started := time.Now()
		err := w.runOnce(ctx, current)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.log.Warn("worker exited", "key", w.key, "error", err)
		}
		if time.Since(started) >= stableRun {
			bo.Reset()
		}

		select {
		case current = <-w.paramCh:
			continue // new params queued: restart immediately, no backoff
		default:
		}

		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		case current = <-w.paramCh:
		}
	}
}

func (w *worker) runOnce(ctx context.Context, p params) error {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cmd := w.build(rctx, p)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("reconcile: starting worker %s: %w", w.key, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		<-done
		return nil
	case np := <-w.paramCh:
		// New params: stop this run and requeue them so run restarts
		// immediately with them. A newer queued restart wins over np.
		cancel()
		<-done
		select {
		case w.paramCh <- np:
		default:
		}
		return nil
	case err := <-done:
		return err
	}
}

// Pool owns every running worker, keyed by input fingerprint.
type Pool struct {
	log   *slog.Logger
	build CommandBuilder

	mu      sync.Mutex
	workers map[string]*worker
}

// NewPool creates an empty pool. ffmpegPath is the forwarder binary path;
// pass a custom CommandBuilder via NewPoolWithBuilder to avoid spawning a
// real process in tests.
func NewPool(ffmpegPath string, log *slog.Logger) *Pool {
	return NewPoolWithBuilder(defaultCommandBuilder(ffmpegPath), log)
}

// NewPoolWithBuilder creates an empty pool with a custom CommandBuilder.
func NewPoolWithBuilder(build CommandBuilder, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{log: log, build: build, workers: make(map[string]*worker)}
}

// Desired is one entry of the desired worker set: a stable key plus the
// params that key should be running with.
type Desired struct {
	Key     string
	Src     *url.URL
	Outputs []*url.URL
}

func (d Desired) params() params { return params{src: d.Src, dsts: d.Outputs} }

// Reconcile converges the pool toward desired. It is idempotent — feeding
// the same set twice does no work the second time — and non-blocking: stops
// are signaled, not waited on.
func (p *Pool) Reconcile(ctx context.Context, desired []Desired) {
	p.mu.Lock()
	defer p.mu.Unlock()

	want := make(map[string]params, len(desired))
	for _, d := range desired {
		want[d.Key] = d.params()
	}

	for key, w := range p.workers {
		if _, ok := want[key]; !ok {
			delete(p.workers, key)
			go w.stop()
		}
	}

	for key, np := range want {
		if w, ok := p.workers[key]; ok {
			if !w.lastParams().equal(np) {
				w.restart(np)
			}
			continue
		}
		p.workers[key] = startWorker(ctx, key, np, p.build, p.log)
	}
}

// Stop stops every worker, waiting for all of them to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.workers = make(map[string]*worker)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.stop()
		}(w)
	}
	wg.Wait()
}
