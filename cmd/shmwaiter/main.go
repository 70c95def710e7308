// Command shmwaiter waits on, wakes and inspects named shared memory waiters.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/shm-waiter/internal/stress"
	"github.com/srediag/shm-waiter/pkg/health"
	"github.com/srediag/shm-waiter/pkg/waiter"
)

const usage = `usage: shmwaiter [-dir DIR] COMMAND [ARGS]

commands:
  wait NAME                      block until NAME is notified
  notify NAME                    wake one waiter of NAME
  broadcast NAME                 wake every waiter of NAME
  stat NAME                      print the state of NAME
  rm NAME                        remove the segment of NAME
  stress [-waiters N] [-rounds R] [NAME]
  health [-addr ADDR] [NAME...]  serve /live, /ready and /metrics
`

func main() {
	dir := flag.String("dir", "", "directory holding waiter segments (default $SHMWAITER_SHM_DIR, then /dev/shm)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := waiter.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dir != "" {
		cfg.ShmDir = *dir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Printf("%s: %v", flag.Arg(0), err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *waiter.Config, cmd string, args []string) error {
	switch cmd {
	case "wait":
		return withNamed(ctx, cfg, args, func(n *waiter.Named) error { return waitOrCancel(ctx, n) })
	case "notify":
		return withNamed(ctx, cfg, args, func(n *waiter.Named) error { n.Notify(); return nil })
	case "broadcast":
		return withNamed(ctx, cfg, args, func(n *waiter.Named) error { n.Broadcast(); return nil })
	case "stat":
		name, err := oneName(args)
		if err != nil {
			return err
		}
		path, err := waiter.NamedPath(name, cfg.ShmDir)
		if err != nil {
			return err
		}
		return waiter.DebugStateDetail(os.Stdout, path, 0)
	case "rm":
		name, err := oneName(args)
		if err != nil {
			return err
		}
		return waiter.RemoveNamed(name, cfg.ShmDir)
	case "stress":
		return runStress(ctx, cfg, args)
	case "health":
		return runHealth(ctx, cfg, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func oneName(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected exactly one NAME")
	}
	return args[0], nil
}

func withNamed(ctx context.Context, cfg *waiter.Config, args []string, fn func(*waiter.Named) error) error {
	name, err := oneName(args)
	if err != nil {
		return err
	}
	n, err := waiter.OpenNamed(ctx, name, waiter.NamedOptions{Config: cfg})
	if err != nil {
		return err
	}
	return errors.Join(fn(n), n.Close())
}

// waitOrCancel returns when n is woken or ctx ends. The blocked goroutine is
// abandoned in the second case; the process is about to exit.
func waitOrCancel(ctx context.Context, n *waiter.Named) error {
	done := make(chan error, 1)
	go func() { done <- n.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runStress(ctx context.Context, cfg *waiter.Config, args []string) error {
	fs := flag.NewFlagSet("stress", flag.ExitOnError)
	waiters := fs.Int("waiters", 8, "concurrent waiters")
	rounds := fs.Int("rounds", 100, "broadcast rounds")
	timeout := fs.Duration("round-timeout", 5*time.Second, "time allowed for one round")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var name string
	switch fs.NArg() {
	case 0:
	case 1:
		name = fs.Arg(0)
	default:
		return errors.New("expected at most one NAME")
	}
	report, err := stress.Run(ctx, stress.Options{
		Name:         name,
		Dir:          cfg.ShmDir,
		Waiters:      *waiters,
		Rounds:       *rounds,
		RoundTimeout: *timeout,
		Config:       cfg,
	})
	fmt.Println(report)
	return err
}

func runHealth(ctx context.Context, cfg *waiter.Config, args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", ":8086", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Registerer = prometheus.DefaultRegisterer

	h := health.NewHandler(health.Options{ShmDir: cfg.ShmDir, Registerer: prometheus.DefaultRegisterer})
	for _, name := range fs.Args() {
		n, err := waiter.OpenNamed(ctx, name, waiter.NamedOptions{Config: cfg})
		if err != nil {
			return err
		}
		defer n.Close()
		health.AddWaiter(h, n)
	}

	mux := http.NewServeMux()
	mux.Handle("/live", h)
	mux.Handle("/ready", h)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("health listening on %s", *addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
