package viewmodel

import (
	"context"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/connectivity"
	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/internal/feedback"
	"github.com/talkincode/prodcatalog/internal/reconcile"
	"github.com/talkincode/prodcatalog/internal/remote/remotetest"
	"github.com/talkincode/prodcatalog/internal/store"
)

type fixture struct {
	vm     *ViewModel
	store  store.Store
	remote *remotetest.Fake
	hub    *feedback.Hub
}

func newFixture(t *testing.T, online bool, products ...domain.Product) *fixture {
	t.Helper()
	st, err := store.Open(config.DBConfig{Type: "sqlite", Name: ":memory:"}, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	oracle := connectivity.NewOracle(connectivity.NewManualSource(online), nil)
	require.NoError(t, oracle.Start(context.Background()))
	t.Cleanup(oracle.Stop)
	require.Eventually(t, func() bool { return oracle.Online() == online }, time.Second, 5*time.Millisecond)

	bus := EventBus.New()
	hub := feedback.NewHub(bus)
	rc := remotetest.NewFake(products...)
	vm := New(Deps{
		Store:        st,
		Remote:       rc,
		Connectivity: oracle,
		Engine:       reconcile.NewEngine(st, rc, hub, bus),
		Feedback:     hub,
		Pool:         pool,
		Bus:          bus,
	}, "", nil)
	return &fixture{vm: vm, store: st, remote: rc, hub: hub}
}

func (f *fixture) fill(name, price string) {
	f.vm.SetName(name)
	f.vm.SetType("type 3")
	f.vm.SetSellingPrice(decimal.RequireFromString(price))
	f.vm.SetTaxRate(decimal.NewFromInt(5))
}

func (f *fixture) formText() string {
	return f.hub.Get(feedback.SlotForm).Text
}

func product(name string) domain.Product {
	return domain.Product{Name: name, Type: "type 1", Price: decimal.NewFromInt(1), Tax: decimal.Zero}
}

func TestTaxRateClampedOnInput(t *testing.T) {
	f := newFixture(t, true)
	f.vm.SetTaxRate(decimal.NewFromInt(150))
	assert.True(t, f.vm.Form().TaxRate.Equal(decimal.NewFromInt(100)))
	f.vm.SetTaxRate(decimal.NewFromInt(-10))
	assert.True(t, f.vm.Form().TaxRate.Equal(decimal.Zero))

	f.vm.SetForm(Form{Name: "x", TaxRate: decimal.NewFromInt(500)})
	assert.True(t, f.vm.Form().TaxRate.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, DefaultType, f.vm.Form().Type)
}

func TestAddProductValidation(t *testing.T) {
	ctx := context.Background()
	for _, online := range []bool{true, false} {
		f := newFixture(t, online)

		f.fill("", "9.99")
		status, err := f.vm.AddProduct(ctx)
		assert.Equal(t, AddRejected, status)
		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.Equal(t, "name cannot be empty", f.hub.Get(feedback.SlotValidation).Text)

		f.fill("Widget", "0")
		_, err = f.vm.AddProduct(ctx)
		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.Equal(t, "selling price cannot be zero", f.hub.Get(feedback.SlotValidation).Text)

		// nothing happened
		assert.Equal(t, "Widget", f.vm.Form().Name)
		assert.Empty(t, f.remote.Creates())
		pending, err := f.vm.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
		assert.Empty(t, f.formText())
	}
}

func TestAddProductOffline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, product("existing"))
	f.vm.Refresh(ctx)
	before, err := f.store.Entries(ctx)
	require.NoError(t, err)

	f.fill("Widget", "9.99")
	f.vm.SetImage([]byte{0xff, 0xd8})
	status, err := f.vm.AddProduct(ctx)
	require.NoError(t, err)
	assert.Equal(t, AddQueued, status)

	pending, err := f.vm.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Widget", pending[0].Name)
	assert.Equal(t, "type 3", pending[0].Type)
	assert.Equal(t, "9.99", pending[0].Price.String())
	assert.Equal(t, "5", pending[0].Tax.String())
	assert.Equal(t, []byte{0xff, 0xd8}, pending[0].Image)

	after, err := f.store.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Equal(t, "You are offline. Product Widget will be added once you are back online", f.formText())
	assert.Equal(t, Form{Type: DefaultType, SellingPrice: decimal.Zero, TaxRate: decimal.Zero}, f.vm.Form())
	assert.Empty(t, f.remote.Creates())
}

func TestAddProductOnlineResetsBeforeCompletion(t *testing.T) {
	f := newFixture(t, true)
	f.remote.Block()

	f.fill("Widget", "9.99")
	status, err := f.vm.AddProduct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AddDispatched, status)

	// reset on dispatch, while the remote call is still pending
	assert.Equal(t, "", f.vm.Form().Name)
	assert.Empty(t, f.formText())

	f.remote.Release()
	require.Eventually(t, func() bool { return f.formText() == "Successfully added Widget" }, time.Second, 5*time.Millisecond)

	creates := f.remote.Creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "type 3", creates[0].Type)
}

func TestAddProductOnlineFailure(t *testing.T) {
	results := map[string]remotetest.CreateFunc{
		"rejected": func(domain.CreateFields) (*domain.CreateResult, error) {
			return &domain.CreateResult{Success: false, Message: "duplicate"}, nil
		},
		"transport": func(domain.CreateFields) (*domain.CreateResult, error) {
			return nil, domain.NewNetworkError("create product", errors.New("reset"))
		},
	}
	for name, fn := range results {
		fn := fn
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, true)
			f.remote.OnCreate(fn)
			f.fill("Widget", "9.99")
			_, err := f.vm.AddProduct(context.Background())
			require.NoError(t, err)
			require.Eventually(t, func() bool { return f.formText() == FailureMessage }, time.Second, 5*time.Millisecond)
		})
	}
}

func TestStaleAddResultIsDropped(t *testing.T) {
	f := newFixture(t, true)
	done := make(chan struct{})
	f.remote.OnCreate(func(fields domain.CreateFields) (*domain.CreateResult, error) {
		defer close(done)
		return &domain.CreateResult{Success: true}, nil
	})
	f.remote.Block()

	f.fill("Widget", "9.99")
	_, err := f.vm.AddProduct(context.Background())
	require.NoError(t, err)
	f.vm.Close()
	f.remote.Release()

	<-done
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.formText())
}

func TestSearchAndPartitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, product("Apple Juice"), product("banana"), product("APPLE pie"), product("Cherry"))
	f.vm.Refresh(ctx)

	entries, err := f.store.Entries(ctx)
	require.NoError(t, err)
	fav, err := f.vm.ToggleFavourite(ctx, entries[2].ID)
	require.NoError(t, err)
	assert.True(t, fav)

	ordered, err := f.vm.Ordered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"APPLE pie", "Apple Juice", "banana", "Cherry"}, entryNames(ordered))

	f.vm.SetSearch("apple")
	filtered, err := f.vm.Filtered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple Juice", "APPLE pie"}, entryNames(filtered))

	favs, err := f.vm.Favourites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"APPLE pie"}, entryNames(favs))
	rest, err := f.vm.NonFavourites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple Juice"}, entryNames(rest))

	f.vm.SetSearch("zzz")
	filtered, err = f.vm.Filtered(ctx)
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestToggleFavourite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, product("a"))
	f.vm.Refresh(ctx)

	changes := 0
	require.NoError(t, f.vm.Subscribe(func() { changes++ }))

	entries, err := f.store.Entries(ctx)
	require.NoError(t, err)
	fav, err := f.vm.ToggleFavourite(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.True(t, fav)
	fav, err = f.vm.ToggleFavourite(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.False(t, fav)
	assert.Equal(t, 2, changes)

	_, err = f.vm.ToggleFavourite(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFilterByNameFoldsCase(t *testing.T) {
	entries := []*domain.CatalogEntry{{Name: "Straße"}, {Name: "STRASSE"}, {Name: "other"}}
	assert.Equal(t, []string{"Straße", "STRASSE"}, entryNames(FilterByName(entries, "strasse")))
	assert.Len(t, FilterByName(entries, ""), 3)
}

func entryNames(entries []*domain.CatalogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestSubmitUsesGivenForm(t *testing.T) {
	f := newFixture(t, false)
	f.vm.SetName("leftover")

	status, err := f.vm.Submit(context.Background(), Form{
		Name:         "Chair",
		SellingPrice: decimal.NewFromInt(40),
		TaxRate:      decimal.NewFromInt(250),
	})
	require.NoError(t, err)
	assert.Equal(t, AddQueued, status)

	pending, err := f.vm.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Chair", pending[0].Name)
	assert.Equal(t, DefaultType, pending[0].Type)
	assert.Equal(t, "100", pending[0].Tax.String())

	def, options := f.vm.Types()
	assert.Equal(t, DefaultType, def)
	assert.Equal(t, DefaultTypeOptions, options)
}
