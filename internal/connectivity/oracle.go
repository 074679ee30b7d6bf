package connectivity

import (
	"context"
	"sync"

	"github.com/asaskevich/EventBus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// TopicChanged is published with the new status on every transition
const TopicChanged = "connectivity:changed"

// Service exposes the last known online status. Its lifecycle belongs to
// the composition root.
type Service interface {
	// Online returns the cached status, possibly stale right after a
	// transition. It never blocks.
	Online() bool
	Start(ctx context.Context) error
	Stop()
}

// Source pushes reachability updates. The channel is closed when ctx ends
// or the source gives up.
type Source interface {
	Watch(ctx context.Context) <-chan bool
}

// Oracle caches the status pushed by a Source
type Oracle struct {
	source Source
	bus    EventBus.Bus
	online *atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Service = (*Oracle)(nil)

// NewOracle creates an oracle reporting offline until the source says
// otherwise. bus may be nil.
func NewOracle(source Source, bus EventBus.Bus) *Oracle {
	return &Oracle{
		source: source,
		bus:    bus,
		online: atomic.NewBool(false),
	}
}

func (o *Oracle) Online() bool {
	return o.online.Load()
}

// Start begins listening to the source. Calling Start twice is a no-op.
func (o *Oracle) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	updates := o.source.Watch(ctx)
	go o.listen(ctx, updates, o.done)

	zap.L().Info("connectivity oracle started", zap.String("namespace", "connectivity"))
	return nil
}

func (o *Oracle) listen(ctx context.Context, updates <-chan bool, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			o.set(status)
		}
	}
}

func (o *Oracle) set(status bool) {
	if o.online.Swap(status) == status {
		return
	}
	zap.L().Info("network status changed",
		zap.String("namespace", "connectivity"),
		zap.Bool("online", status))
	if o.bus != nil {
		o.bus.Publish(TopicChanged, status)
	}
}

// Stop stops listening and waits for the listener to exit
func (o *Oracle) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	zap.L().Info("connectivity oracle stopped", zap.String("namespace", "connectivity"))
}
