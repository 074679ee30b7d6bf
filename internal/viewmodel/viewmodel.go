package viewmodel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/talkincode/prodcatalog/internal/connectivity"
	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/internal/feedback"
	"github.com/talkincode/prodcatalog/internal/reconcile"
	"github.com/talkincode/prodcatalog/internal/remote"
	"github.com/talkincode/prodcatalog/internal/store"
	"github.com/talkincode/prodcatalog/pkg/metrics"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

const (
	DefaultType    = "type 1"
	FailureMessage = "Unsuccessful in adding the Product."
)

var DefaultTypeOptions = []string{"type 1", "type 2", "type 3", "type 4"}

func successMessage(name string) string {
	return "Successfully added " + name
}

func offlineMessage(name string) string {
	return fmt.Sprintf("You are offline. Product %s will be added once you are back online", name)
}

// AddStatus tells which path an add request took
type AddStatus int

const (
	AddRejected AddStatus = iota
	AddDispatched
	AddQueued
)

func (s AddStatus) String() string {
	switch s {
	case AddDispatched:
		return "dispatched"
	case AddQueued:
		return "queued"
	default:
		return "rejected"
	}
}

// Form is the product creation input
type Form struct {
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Image        []byte          `json:"-"`
}

// Fields converts the form into create fields
func (f Form) Fields() domain.CreateFields {
	return domain.CreateFields{
		Name:  f.Name,
		Type:  f.Type,
		Price: f.SellingPrice,
		Tax:   f.TaxRate,
		Image: f.Image,
	}
}

// Deps are the collaborators of a ViewModel
type Deps struct {
	Store        store.Store
	Remote       remote.Client
	Connectivity connectivity.Service
	Engine       *reconcile.Engine
	Feedback     *feedback.Hub
	Pool         *ants.Pool
	Bus          EventBus.Bus
}

// ViewModel holds the catalog presentation state
type ViewModel struct {
	deps        Deps
	defaultType string
	typeOptions []string

	mu     sync.RWMutex
	form   Form
	search string

	// serializes submissions so a form is never mixed with another
	submitMu sync.Mutex

	// dispatch generation of detached add tasks
	gen    *atomic.Uint64
	closed *atomic.Bool
}

// New creates a view-model. typeOptions defaults to type 1..4.
func New(deps Deps, defaultType string, typeOptions []string) *ViewModel {
	if defaultType == "" {
		defaultType = DefaultType
	}
	if len(typeOptions) == 0 {
		typeOptions = DefaultTypeOptions
	}
	vm := &ViewModel{
		deps:        deps,
		defaultType: defaultType,
		typeOptions: typeOptions,
		gen:         atomic.NewUint64(0),
		closed:      atomic.NewBool(false),
	}
	vm.form = vm.blankForm()
	return vm
}

func (vm *ViewModel) blankForm() Form {
	return Form{Type: vm.defaultType, SellingPrice: decimal.Zero, TaxRate: decimal.Zero}
}

// Types returns the default product type and the selectable ones
func (vm *ViewModel) Types() (string, []string) {
	return vm.defaultType, append([]string(nil), vm.typeOptions...)
}

func (vm *ViewModel) Form() Form {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.form
}

func (vm *ViewModel) SetName(name string) {
	vm.mu.Lock()
	vm.form.Name = name
	vm.mu.Unlock()
}

func (vm *ViewModel) SetType(typ string) {
	vm.mu.Lock()
	vm.form.Type = typ
	vm.mu.Unlock()
}

func (vm *ViewModel) SetSellingPrice(price decimal.Decimal) {
	vm.mu.Lock()
	vm.form.SellingPrice = price
	vm.mu.Unlock()
}

// SetTaxRate stores the rate clamped to [0, 100]
func (vm *ViewModel) SetTaxRate(rate decimal.Decimal) {
	vm.mu.Lock()
	vm.form.TaxRate = domain.ClampTax(rate)
	vm.mu.Unlock()
}

func (vm *ViewModel) SetImage(data []byte) {
	vm.mu.Lock()
	vm.form.Image = data
	vm.mu.Unlock()
}

// SetForm replaces every field at once, clamping the tax rate
func (vm *ViewModel) SetForm(f Form) {
	f.TaxRate = domain.ClampTax(f.TaxRate)
	if f.Type == "" {
		f.Type = vm.defaultType
	}
	vm.mu.Lock()
	vm.form = f
	vm.mu.Unlock()
}

func (vm *ViewModel) ResetForm() {
	vm.mu.Lock()
	vm.form = vm.blankForm()
	vm.mu.Unlock()
}

// AddProduct submits the current form. Invalid input sets the validation
// message and changes nothing else. Online, the create call runs detached
// and its outcome lands in the form feedback slot. Offline, the request is
// queued. The form is reset as soon as the request is dispatched.
func (vm *ViewModel) AddProduct(ctx context.Context) (AddStatus, error) {
	vm.submitMu.Lock()
	defer vm.submitMu.Unlock()
	return vm.addProduct(ctx)
}

// Submit fills the form with f and adds it in one step
func (vm *ViewModel) Submit(ctx context.Context, f Form) (AddStatus, error) {
	vm.submitMu.Lock()
	defer vm.submitMu.Unlock()
	vm.SetForm(f)
	return vm.addProduct(ctx)
}

func (vm *ViewModel) addProduct(ctx context.Context) (AddStatus, error) {
	form := vm.Form()
	fields := form.Fields()

	if err := domain.ValidateCreate(fields); err != nil {
		vm.deps.Feedback.Set(feedback.SlotValidation, err.Error())
		return AddRejected, err
	}
	vm.deps.Feedback.Clear(feedback.SlotValidation)

	if vm.deps.Connectivity.Online() {
		gen := vm.gen.Inc()
		task := func() { vm.create(context.WithoutCancel(ctx), gen, fields) }
		if err := vm.deps.Pool.Submit(task); err != nil {
			zap.L().Error("submit add task failed",
				zap.String("namespace", "viewmodel"),
				zap.String("product", fields.Name),
				zap.Error(err))
			metrics.Inc(metrics.AddFailed)
			vm.deps.Feedback.Set(feedback.SlotForm, FailureMessage)
			return AddRejected, errors.Wrap(err, "submit add task")
		}
		metrics.Inc(metrics.AddOnline)
		vm.ResetForm()
		return AddDispatched, nil
	}

	req := &domain.PendingCreateRequest{
		Name:  fields.Name,
		Type:  fields.Type,
		Price: fields.Price,
		Tax:   fields.Tax,
		Image: fields.Image,
	}
	if err := vm.deps.Store.EnqueuePending(ctx, req); err != nil {
		zap.L().Error("queue product failed",
			zap.String("namespace", "viewmodel"),
			zap.String("product", fields.Name),
			zap.Error(err))
		vm.deps.Feedback.Set(feedback.SlotForm, FailureMessage)
		return AddQueued, err
	}
	// a newer dispatch supersedes detached results still in flight
	vm.gen.Inc()
	metrics.Inc(metrics.AddQueued)
	zap.L().Info("product queued while offline",
		zap.String("namespace", "viewmodel"),
		zap.String("product", fields.Name),
		zap.Int64("id", req.ID))
	vm.deps.Feedback.Set(feedback.SlotForm, offlineMessage(fields.Name))
	vm.ResetForm()
	return AddQueued, nil
}

func (vm *ViewModel) create(ctx context.Context, gen uint64, fields domain.CreateFields) {
	res, err := vm.deps.Remote.CreateProduct(ctx, fields)

	msg := FailureMessage
	switch {
	case err != nil:
		zap.L().Warn("add product failed",
			zap.String("namespace", "viewmodel"),
			zap.String("product", fields.Name),
			zap.Error(err))
	case !res.Success:
		zap.L().Warn("add product rejected",
			zap.String("namespace", "viewmodel"),
			zap.String("product", fields.Name),
			zap.String("message", res.Message))
	default:
		msg = successMessage(fields.Name)
	}
	if msg == FailureMessage {
		metrics.Inc(metrics.AddFailed)
	}

	if vm.closed.Load() || vm.gen.Load() != gen {
		zap.L().Debug("dropping stale add result",
			zap.String("namespace", "viewmodel"),
			zap.String("product", fields.Name))
		return
	}
	vm.deps.Feedback.Set(feedback.SlotForm, msg)
}

// Refresh reloads the catalog from the remote service
func (vm *ViewModel) Refresh(ctx context.Context) reconcile.RefreshOutcome {
	return vm.deps.Engine.Refresh(ctx)
}

// Bootstrap runs the startup refresh followed by the queue drain
func (vm *ViewModel) Bootstrap(ctx context.Context) (reconcile.RefreshOutcome, reconcile.DrainReport, error) {
	return vm.deps.Engine.Bootstrap(ctx)
}

// ToggleFavourite flips the favourite flag of one entry
func (vm *ViewModel) ToggleFavourite(ctx context.Context, id int64) (bool, error) {
	fav, err := vm.deps.Store.ToggleFavourite(ctx, id)
	if err != nil {
		return false, err
	}
	if vm.deps.Bus != nil {
		vm.deps.Bus.Publish(reconcile.TopicCatalogChanged)
	}
	return fav, nil
}

func (vm *ViewModel) SetSearch(text string) {
	vm.mu.Lock()
	vm.search = text
	vm.mu.Unlock()
}

func (vm *ViewModel) Search() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.search
}

// Filtered returns the entries whose name contains the search text,
// ignoring case. An empty search matches everything.
func (vm *ViewModel) Filtered(ctx context.Context) ([]*domain.CatalogEntry, error) {
	entries, err := vm.deps.Store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByName(entries, vm.Search()), nil
}

func (vm *ViewModel) Favourites(ctx context.Context) ([]*domain.CatalogEntry, error) {
	favs, _, err := vm.partition(ctx)
	return favs, err
}

func (vm *ViewModel) NonFavourites(ctx context.Context) ([]*domain.CatalogEntry, error) {
	_, rest, err := vm.partition(ctx)
	return rest, err
}

// Ordered returns the filtered entries, favourites first
func (vm *ViewModel) Ordered(ctx context.Context) ([]*domain.CatalogEntry, error) {
	favs, rest, err := vm.partition(ctx)
	if err != nil {
		return nil, err
	}
	return append(favs, rest...), nil
}

// Pending returns the queued create requests
func (vm *ViewModel) Pending(ctx context.Context) ([]*domain.PendingCreateRequest, error) {
	return vm.deps.Store.PendingRequests(ctx)
}

func (vm *ViewModel) partition(ctx context.Context) (favs, rest []*domain.CatalogEntry, err error) {
	return vm.Lookup(ctx, vm.Search())
}

// Lookup partitions the entries matching text without touching the
// current search.
func (vm *ViewModel) Lookup(ctx context.Context, text string) (favs, rest []*domain.CatalogEntry, err error) {
	entries, err := vm.deps.Store.Entries(ctx)
	if err != nil {
		return nil, nil, err
	}
	entries = FilterByName(entries, text)
	favs = make([]*domain.CatalogEntry, 0)
	rest = make([]*domain.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsFavourite {
			favs = append(favs, e)
		} else {
			rest = append(rest, e)
		}
	}
	return favs, rest, nil
}

// Subscribe registers fn for catalog changes
func (vm *ViewModel) Subscribe(fn func()) error {
	if vm.deps.Bus == nil {
		return nil
	}
	return vm.deps.Bus.Subscribe(reconcile.TopicCatalogChanged, fn)
}

// Close makes results of detached tasks still in flight no-ops
func (vm *ViewModel) Close() {
	vm.closed.Store(true)
}

// FilterByName keeps the entries whose name contains text, ignoring case
func FilterByName(entries []*domain.CatalogEntry, text string) []*domain.CatalogEntry {
	if text == "" {
		return entries
	}
	fold := cases.Fold()
	needle := fold.String(text)
	out := make([]*domain.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(fold.String(e.Name), needle) {
			out = append(out, e)
		}
	}
	return out
}
