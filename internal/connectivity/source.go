package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DialFunc opens a probe connection
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialSource probes a TCP address on a cron schedule and pushes the result
// only when it differs from the previous probe.
type DialSource struct {
	Addr     string
	Schedule string
	Timeout  time.Duration
	Dial     DialFunc
}

// NewDialSource creates a TCP reachability source
func NewDialSource(addr, schedule string, timeout time.Duration) *DialSource {
	if schedule == "" {
		schedule = "@every 5s"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := &net.Dialer{}
	return &DialSource{
		Addr:     addr,
		Schedule: schedule,
		Timeout:  timeout,
		Dial:     d.DialContext,
	}
}

func (s *DialSource) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	conn, err := s.Dial(ctx, "tcp", s.Addr)
	if err != nil {
		zap.L().Debug("connectivity probe failed",
			zap.String("namespace", "connectivity"),
			zap.String("addr", s.Addr),
			zap.Error(err))
		return false
	}
	_ = conn.Close()
	return true
}

func (s *DialSource) Watch(ctx context.Context) <-chan bool {
	out := make(chan bool, 1)

	var (
		mu    sync.Mutex
		last  bool
		known bool
	)
	check := func() {
		status := s.probe(ctx)
		mu.Lock()
		defer mu.Unlock()
		if known && status == last {
			return
		}
		known, last = true, status
		select {
		case out <- status:
		case <-ctx.Done():
		}
	}

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := sched.AddFunc(s.Schedule, check); err != nil {
		zap.L().Error("invalid connectivity probe schedule",
			zap.String("namespace", "connectivity"),
			zap.String("schedule", s.Schedule),
			zap.Error(err))
		close(out)
		return out
	}

	go func() {
		defer close(out)
		check()
		sched.Start()
		<-ctx.Done()
		<-sched.Stop().Done()
	}()
	return out
}

// ManualSource is driven explicitly, used for forced offline mode and tests
type ManualSource struct {
	updates chan bool
}

// NewManualSource creates a source whose first status is initial
func NewManualSource(initial bool) *ManualSource {
	s := &ManualSource{updates: make(chan bool, 16)}
	s.updates <- initial
	return s
}

// Set pushes a new status
func (s *ManualSource) Set(online bool) {
	s.updates <- online
}

func (s *ManualSource) Watch(ctx context.Context) <-chan bool {
	return s.updates
}
