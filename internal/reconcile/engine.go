package reconcile

import (
	"context"
	"strings"

	"github.com/asaskevich/EventBus"
	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/internal/feedback"
	"github.com/talkincode/prodcatalog/internal/remote"
	"github.com/talkincode/prodcatalog/internal/store"
	"github.com/talkincode/prodcatalog/pkg/metrics"
	"go.uber.org/zap"
)

// TopicCatalogChanged is published after the local catalog was modified
const TopicCatalogChanged = "catalog:changed"

const EmptyListMessage = "empty product list"

type RefreshStatus int

const (
	RefreshReplaced RefreshStatus = iota
	RefreshEmpty
	RefreshFailed
)

func (s RefreshStatus) String() string {
	switch s {
	case RefreshReplaced:
		return "replaced"
	case RefreshEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// RefreshOutcome describes one refresh attempt
type RefreshOutcome struct {
	Status     RefreshStatus
	Count      int
	Favourites int
	Err        error
}

// DrainReport lists the names replayed by a drain
type DrainReport struct {
	Succeeded []string
	Failed    []string
	Message   string
}

// Engine keeps the local catalog in line with the remote service
type Engine struct {
	store  store.Store
	remote remote.Client
	hub    *feedback.Hub
	bus    EventBus.Bus
}

// NewEngine creates an engine. bus may be nil.
func NewEngine(st store.Store, rc remote.Client, hub *feedback.Hub, bus EventBus.Bus) *Engine {
	return &Engine{store: st, remote: rc, hub: hub, bus: bus}
}

// Refresh replaces the local catalog with the remote list. Favourite flags
// are carried over to entries with the same name. A failed fetch or an
// empty list leaves the catalog untouched.
func (e *Engine) Refresh(ctx context.Context) RefreshOutcome {
	products, err := e.remote.FetchAll(ctx)
	if err != nil {
		zap.L().Error("catalog refresh failed",
			zap.String("namespace", "reconcile"),
			zap.Error(err))
		metrics.Inc(metrics.RefreshFailed)
		e.hub.Set(feedback.SlotList, err.Error())
		return RefreshOutcome{Status: RefreshFailed, Err: err}
	}

	if len(products) == 0 {
		zap.L().Info("remote returned an empty product list", zap.String("namespace", "reconcile"))
		metrics.Inc(metrics.RefreshEmpty)
		e.hub.Set(feedback.SlotList, EmptyListMessage)
		return RefreshOutcome{Status: RefreshEmpty}
	}

	var carried int
	err = e.store.Rebuild(ctx, func(current []*domain.CatalogEntry) ([]*domain.CatalogEntry, error) {
		favourites := FavouriteNames(current)
		next := make([]*domain.CatalogEntry, 0, len(products))
		carried = 0
		for i, p := range products {
			entry := domain.NewCatalogEntry(p, i)
			if _, ok := favourites[p.Name]; ok {
				entry.IsFavourite = true
				carried++
			}
			next = append(next, entry)
		}
		return next, nil
	})
	if err != nil {
		zap.L().Error("catalog replace failed",
			zap.String("namespace", "reconcile"),
			zap.Error(err))
		metrics.Inc(metrics.RefreshFailed)
		e.hub.Set(feedback.SlotList, err.Error())
		return RefreshOutcome{Status: RefreshFailed, Err: err}
	}

	zap.L().Info("catalog replaced",
		zap.String("namespace", "reconcile"),
		zap.Int("count", len(products)),
		zap.Int("favourites", carried))
	metrics.Inc(metrics.RefreshOk)
	metrics.SetGauge(metrics.CatalogSize, int64(len(products)))
	e.publish()
	return RefreshOutcome{Status: RefreshReplaced, Count: len(products), Favourites: carried}
}

// Drain replays every queued create request exactly once. Each request is
// removed after its attempt whatever the outcome.
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport
	reqs, err := e.store.PendingRequests(ctx)
	if err != nil {
		return report, err
	}
	if len(reqs) == 0 {
		return report, nil
	}

	for _, req := range reqs {
		res, err := e.remote.CreateProduct(ctx, req.Fields())
		switch {
		case err != nil:
			zap.L().Warn("queued product replay failed",
				zap.String("namespace", "reconcile"),
				zap.String("product", req.Name),
				zap.Error(err))
			report.Failed = append(report.Failed, req.Name)
		case !res.Success:
			zap.L().Warn("queued product rejected",
				zap.String("namespace", "reconcile"),
				zap.String("product", req.Name),
				zap.String("message", res.Message))
			report.Failed = append(report.Failed, req.Name)
		default:
			report.Succeeded = append(report.Succeeded, req.Name)
		}

		if err := e.store.DeletePending(ctx, req.ID); err != nil {
			zap.L().Error("delete pending request failed",
				zap.String("namespace", "reconcile"),
				zap.Int64("id", req.ID),
				zap.Error(err))
		}
	}

	metrics.Add(metrics.DrainSucceeded, len(report.Succeeded))
	metrics.Add(metrics.DrainFailed, len(report.Failed))
	metrics.SetGauge(metrics.PendingSize, 0)

	report.Message = DrainMessage(report.Succeeded, report.Failed)
	e.hub.Set(feedback.SlotList, report.Message)
	zap.L().Info("pending queue drained",
		zap.String("namespace", "reconcile"),
		zap.Strings("succeeded", report.Succeeded),
		zap.Strings("failed", report.Failed))
	return report, nil
}

// Bootstrap runs the startup sequence: one refresh, then one drain whatever
// the refresh outcome.
func (e *Engine) Bootstrap(ctx context.Context) (RefreshOutcome, DrainReport, error) {
	outcome := e.Refresh(ctx)
	report, err := e.Drain(ctx)
	return outcome, report, err
}

func (e *Engine) publish() {
	if e.bus != nil {
		e.bus.Publish(TopicCatalogChanged)
	}
}

// FavouriteNames returns the names of the entries marked favourite
func FavouriteNames(entries []*domain.CatalogEntry) map[string]struct{} {
	names := make(map[string]struct{})
	for _, e := range entries {
		if e.IsFavourite {
			names[e.Name] = struct{}{}
		}
	}
	return names
}

// DrainMessage builds the combined drain feedback, omitting an empty clause
func DrainMessage(succeeded, failed []string) string {
	var clauses []string
	if len(succeeded) > 0 {
		clauses = append(clauses, "successfully added "+strings.Join(succeeded, ", "))
	}
	if len(failed) > 0 {
		clauses = append(clauses, "Failed to add "+strings.Join(failed, ", "))
	}
	return strings.Join(clauses, ". ")
}
