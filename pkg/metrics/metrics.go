package metrics

import (
	"path"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Metric names recorded by the catalog services
const (
	RefreshOk      = "catalog_refresh_ok"
	RefreshFailed  = "catalog_refresh_failed"
	RefreshEmpty   = "catalog_refresh_empty"
	DrainSucceeded = "catalog_drain_succeeded"
	DrainFailed    = "catalog_drain_failed"
	AddOnline      = "catalog_add_online"
	AddQueued      = "catalog_add_queued"
	AddFailed      = "catalog_add_failed"
	CatalogSize    = "catalog_entries"
	PendingSize    = "catalog_pending"
)

var (
	storage tstorage.Storage
	mu      sync.RWMutex
	// insertMu orders writes; lastTs keeps point timestamps strictly
	// increasing so that events in the same instant stay separate points.
	insertMu sync.Mutex
	lastTs   = atomic.NewInt64(0)
)

// InitMetrics opens the time series storage under workdir/data/metrics.
// An empty workdir keeps the series in memory only.
func InitMetrics(workdir string) error {
	opts := []tstorage.Option{
		tstorage.WithTimestampPrecision(tstorage.Nanoseconds),
		tstorage.WithRetention(7 * 24 * time.Hour),
	}
	if workdir != "" {
		opts = append(opts, tstorage.WithDataPath(path.Join(workdir, "data", "metrics")))
	}
	s, err := tstorage.NewStorage(opts...)
	if err != nil {
		return errors.Wrap(err, "open metrics storage")
	}
	mu.Lock()
	defer mu.Unlock()
	if storage != nil {
		_ = storage.Close()
	}
	storage = s
	return nil
}

// Close flushes and closes the storage
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}

func insert(name string, value float64) {
	mu.RLock()
	defer mu.RUnlock()
	if storage == nil {
		return
	}
	insertMu.Lock()
	defer insertMu.Unlock()
	err := storage.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: nextTimestamp(), Value: value},
	}})
	if err != nil {
		zap.L().Warn("metrics insert failed",
			zap.String("namespace", "metrics"),
			zap.String("metric", name),
			zap.Error(err))
	}
}

func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := lastTs.Load()
		if now <= last {
			now = last + 1
		}
		if lastTs.CAS(last, now) {
			return now
		}
	}
}

// Inc records one occurrence of a counter
func Inc(name string) {
	insert(name, 1)
}

// Add records n occurrences of a counter
func Add(name string, n int) {
	if n <= 0 {
		return
	}
	insert(name, float64(n))
}

// SetGauge records the current value of a gauge
func SetGauge(name string, value int64) {
	insert(name, float64(value))
}

// Sum adds up every point of name recorded within [since, now]
func Sum(name string, since time.Time) (float64, error) {
	mu.RLock()
	defer mu.RUnlock()
	if storage == nil {
		return 0, nil
	}
	points, err := storage.Select(name, nil, since.UnixNano(), lastTs.Load()+1)
	if errors.Is(err, tstorage.ErrNoDataPoints) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "select %s", name)
	}
	var total float64
	for _, p := range points {
		total += p.Value
	}
	return total, nil
}
