// Package remotetest provides a scriptable in-memory remote catalog client.
package remotetest

import (
	"context"
	"sync"

	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/pkg/common"
)

// CreateFunc decides the outcome of one create call
type CreateFunc func(fields domain.CreateFields) (*domain.CreateResult, error)

// Fake implements remote.Client
type Fake struct {
	mu       sync.Mutex
	products []domain.Product
	fetchErr error
	onCreate CreateFunc
	block    chan struct{}
	creates  []domain.CreateFields
	fetches  int
}

// NewFake returns a fake serving products and accepting every create
func NewFake(products ...domain.Product) *Fake {
	return &Fake{products: products}
}

// SetProducts replaces the remote snapshot
func (f *Fake) SetProducts(products ...domain.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = products
}

// FailFetch makes FetchAll return err (nil restores)
func (f *Fake) FailFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// OnCreate overrides the create outcome
func (f *Fake) OnCreate(fn CreateFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCreate = fn
}

// Block makes CreateProduct wait until Release is called
func (f *Fake) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
}

// Release unblocks pending CreateProduct calls
func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block != nil {
		close(f.block)
		f.block = nil
	}
}

// Creates returns every create request received
func (f *Fake) Creates() []domain.CreateFields {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CreateFields, len(f.creates))
	copy(out, f.creates)
	return out
}

// Fetches returns the number of FetchAll calls
func (f *Fake) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *Fake) FetchAll(ctx context.Context) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]domain.Product, len(f.products))
	for i, p := range f.products {
		p.ID = common.UUIDint64()
		out[i] = p
	}
	return out, nil
}

func (f *Fake) CreateProduct(ctx context.Context, fields domain.CreateFields) (*domain.CreateResult, error) {
	f.mu.Lock()
	f.creates = append(f.creates, fields)
	fn := f.onCreate
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, domain.NewNetworkError("create product", ctx.Err())
		}
	}
	if fn != nil {
		return fn(fields)
	}
	return &domain.CreateResult{
		Success: true,
		Message: "Product added Successfully!",
		Product: domain.Product{Name: fields.Name, Type: fields.Type, Price: fields.Price, Tax: fields.Tax},
	}, nil
}
