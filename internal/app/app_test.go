package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/internal/feedback"
	"github.com/talkincode/prodcatalog/internal/mockremote"
	"github.com/talkincode/prodcatalog/internal/viewmodel"
)

func testConfig(remoteURL string) *config.AppConfig {
	cfg := config.DefaultAppConfig()
	cfg.System.Workdir = ""
	cfg.Database = config.DBConfig{Type: "sqlite", Name: ":memory:"}
	cfg.Remote.BaseURL = remoteURL
	cfg.Remote.Timeout = 5 * time.Second
	cfg.Connectivity.ForceOffline = true
	cfg.Metrics.Enabled = false
	cfg.Feedback = config.FeedbackConfig{}
	cfg.Web.Enabled = true
	return cfg
}

func TestApplicationEndToEnd(t *testing.T) {
	mock := mockremote.New(mockremote.SeedProducts...)
	ts := httptest.NewServer(mock.Handler())
	defer ts.Close()

	a := NewApplication(testConfig(ts.URL))
	require.NoError(t, a.Init())
	defer a.Release()
	ctx := context.Background()

	require.NoError(t, a.Store().EnqueuePending(ctx, &domain.PendingCreateRequest{
		Name:  "Queued lamp",
		Type:  "type 2",
		Price: decimal.NewFromInt(15),
		Tax:   decimal.NewFromInt(5),
	}))

	require.NoError(t, a.Start(ctx))

	entries, err := a.Store().Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, len(mockremote.SeedProducts))
	assert.Equal(t, "successfully added Queued lamp", a.Feedback().Get(feedback.SlotList).Text)
	pending, err := a.Store().PendingRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, mock.Products(), len(mockremote.SeedProducts)+1)

	// offline add is queued
	vm := a.Catalog()
	status, err := vm.Submit(ctx, viewmodel.Form{Name: "Desk", SellingPrice: decimal.NewFromInt(80)})
	require.NoError(t, err)
	assert.Equal(t, viewmodel.AddQueued, status)

	// back online, the next add reaches the remote
	require.NoError(t, a.SetOnline(true))
	require.Eventually(t, a.Connectivity().Online, time.Second, 5*time.Millisecond)
	status, err = vm.Submit(ctx, viewmodel.Form{Name: "Chair", SellingPrice: decimal.NewFromInt(40)})
	require.NoError(t, err)
	assert.Equal(t, viewmodel.AddDispatched, status)
	require.Eventually(t, func() bool {
		return a.Feedback().Get(feedback.SlotForm).Text == "Successfully added Chair"
	}, 2*time.Second, 10*time.Millisecond)

	// the queued desk is only replayed by the next bootstrap
	pending, err = a.Store().PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Desk", pending[0].Name)

	out := vm.Refresh(ctx)
	assert.Equal(t, len(mockremote.SeedProducts)+2, out.Count)

	rec := httptest.NewRecorder()
	a.Web().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connectivity", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"online":true`)
}

func TestSetOnlineRequiresManualConnectivity(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Connectivity.ForceOffline = false
	cfg.Web.Enabled = false
	a := NewApplication(cfg)
	require.NoError(t, a.Init())
	defer a.Release()

	assert.Error(t, a.SetOnline(true))
	assert.Nil(t, a.Web())
}

func TestInitRejectsBadRefreshSchedule(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Catalog.RefreshSchedule = "every now and then"
	a := NewApplication(cfg)
	defer a.Release()
	assert.Error(t, a.Init())
}
