// Package stress drives one named waiter with many concurrent waiters and
// checks that every broadcast round reaches all of them.
package stress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/srediag/shm-waiter/internal/logger"
	"github.com/srediag/shm-waiter/pkg/waiter"
)

const defaultRoundTimeout = 5 * time.Second

var stressLogger = logger.New("stress", nil)

// Options configures Run.
type Options struct {
	// Name of the waiter. Empty runs on a fresh waiter that is removed afterwards.
	Name    string
	Dir     string
	Waiters int
	Rounds  int
	// RoundTimeout bounds how long one round may take to reach every waiter.
	RoundTimeout time.Duration
	Config       *waiter.Config
}

// Report summarizes a run.
type Report struct {
	Waiters    int
	Rounds     int
	Wakeups    int
	Generation uint32
	Elapsed    time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("waiters:%d rounds:%d wakeups:%d gen:%d elapsed:%s",
		r.Waiters, r.Rounds, r.Wakeups, r.Generation, r.Elapsed)
}

type event struct {
	worker int
	round  int64
}

// Run opens opts.Name, starts opts.Waiters workers blocked on it and
// broadcasts opts.Rounds times, waiting after each round until every worker
// has observed it.
func Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Waiters <= 0 || opts.Rounds <= 0 {
		return Report{}, errors.New("waiters and rounds must be positive")
	}
	if opts.RoundTimeout <= 0 {
		opts.RoundTimeout = defaultRoundTimeout
	}
	if opts.Name == "" {
		opts.Name = "stress-" + uuid.NewString()
		defer func() {
			if err := waiter.RemoveNamed(opts.Name, opts.Dir); err != nil {
				stressLogger.Warnf("remove %s: %v", opts.Name, err)
			}
		}()
	}
	named := waiter.NamedOptions{Dir: opts.Dir, Config: opts.Config}
	driver, err := waiter.OpenNamed(ctx, opts.Name, named)
	if err != nil {
		return Report{}, err
	}
	defer driver.Close()

	pool, err := ants.NewPool(opts.Waiters, ants.WithPreAlloc(true))
	if err != nil {
		return Report{}, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	events := queuepkg.New(int64(opts.Waiters))
	defer events.Dispose()

	var (
		round atomic.Int64
		stop  atomic.Bool
		wg    sync.WaitGroup
	)
	abort := func() {
		if err := driver.Lock(); err == nil {
			stop.Store(true)
			_ = driver.Unlock()
		}
		driver.Broadcast()
	}

	for i := 0; i < opts.Waiters; i++ {
		id := i
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := work(ctx, id, opts, named, &round, &stop, events); err != nil {
				stressLogger.Errorf("worker %d: %v", id, err)
				_ = events.Put(err)
			}
		})
		if err != nil {
			wg.Done()
			abort()
			wg.Wait()
			return Report{}, fmt.Errorf("submit worker %d: %w", id, err)
		}
	}

	start := time.Now()
	report := Report{Waiters: opts.Waiters}
	for r := int64(1); r <= int64(opts.Rounds); r++ {
		if err := driver.Lock(); err != nil {
			abort()
			wg.Wait()
			return report, err
		}
		round.Store(r)
		if err := driver.Unlock(); err != nil {
			abort()
			wg.Wait()
			return report, err
		}
		driver.Broadcast()

		n, err := collect(ctx, events, r, opts.Waiters, opts.RoundTimeout)
		report.Wakeups += n
		if err != nil {
			abort()
			wg.Wait()
			return report, fmt.Errorf("round %d: %w", r, err)
		}
		report.Rounds++
		stressLogger.Debugf("round %d reached %d waiters", r, n)
	}
	wg.Wait()
	report.Elapsed = time.Since(start)
	report.Generation = driver.Snapshot().Generation
	return report, nil
}

func work(ctx context.Context, id int, opts Options, named waiter.NamedOptions,
	round *atomic.Int64, stop *atomic.Bool, events *queuepkg.Queue) error {
	n, err := waiter.OpenNamed(ctx, opts.Name, named)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.Lock(); err != nil {
		return err
	}
	var seen int64
	for seen < int64(opts.Rounds) {
		for round.Load() == seen && !stop.Load() {
			if err := n.WaitLocked(); err != nil {
				_ = n.Unlock()
				return err
			}
		}
		if stop.Load() {
			break
		}
		seen = round.Load()
		if err := events.Put(event{worker: id, round: seen}); err != nil {
			_ = n.Unlock()
			return err
		}
	}
	return n.Unlock()
}

// collect waits until want workers have reported round r.
func collect(ctx context.Context, events *queuepkg.Queue, r int64, want int, timeout time.Duration) (int, error) {
	got := 0
	deadline := time.Now().Add(timeout)
	for got < want {
		if err := ctx.Err(); err != nil {
			return got, err
		}
		left := time.Until(deadline)
		if left <= 0 {
			return got, fmt.Errorf("%d of %d waiters woke before timeout", got, want)
		}
		items, err := events.Poll(int64(want-got), left)
		if err != nil {
			if errors.Is(err, queuepkg.ErrTimeout) {
				continue
			}
			return got, err
		}
		for _, item := range items {
			switch e := item.(type) {
			case event:
				if e.round != r {
					return got, fmt.Errorf("worker %d reported round %d", e.worker, e.round)
				}
				got++
			case error:
				return got, e
			}
		}
	}
	return got, nil
}
