package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	MaxTaxPercent = decimal.NewFromInt(100)
	zero          = decimal.Zero
)

// Product is a catalog item as served by the remote service. The remote
// payload carries no stable identifier, ID is assigned locally on receipt.
type Product struct {
	ID    int64           `json:"-"`
	Image string          `json:"image"`
	Price decimal.Decimal `json:"price"`
	Name  string          `json:"product_name"`
	Type  string          `json:"product_type"`
	Tax   decimal.Decimal `json:"tax"`
}

// CatalogEntry is a reconciled product persisted in the local store
type CatalogEntry struct {
	ID          int64           `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Position    int             `json:"position"` // order within the remote snapshot
	Name        string          `gorm:"index" json:"product_name"`
	Type        string          `gorm:"size:64" json:"product_type"`
	Image       string          `gorm:"size:1024" json:"image"`
	Price       decimal.Decimal `gorm:"type:decimal(20,6)" json:"price"`
	Tax         decimal.Decimal `gorm:"type:decimal(20,6)" json:"tax"`
	IsFavourite bool            `gorm:"default:false" json:"is_favourite"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName Specify table name
func (CatalogEntry) TableName() string {
	return "catalog_entry"
}

// NewCatalogEntry wraps a product snapshot, favourite flag off
func NewCatalogEntry(p Product, position int) *CatalogEntry {
	return &CatalogEntry{
		ID:        p.ID,
		Position:  position,
		Name:      p.Name,
		Type:      p.Type,
		Image:     p.Image,
		Price:     p.Price,
		Tax:       p.Tax,
		CreatedAt: time.Now(),
	}
}

// Product returns the remote-shaped snapshot of the entry
func (e *CatalogEntry) Product() Product {
	return Product{
		ID:    e.ID,
		Image: e.Image,
		Price: e.Price,
		Name:  e.Name,
		Type:  e.Type,
		Tax:   e.Tax,
	}
}

// PendingCreateRequest is a product creation attempted while offline,
// waiting for the next drain.
type PendingCreateRequest struct {
	ID        int64           `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Name      string          `json:"product_name"`
	Type      string          `gorm:"size:64" json:"product_type"`
	Price     decimal.Decimal `gorm:"type:decimal(20,6)" json:"price"`
	Tax       decimal.Decimal `gorm:"type:decimal(20,6)" json:"tax"`
	Image     []byte          `json:"image,omitempty"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
}

// TableName Specify table name
func (PendingCreateRequest) TableName() string {
	return "catalog_pending_request"
}

// Fields returns the create fields stored in the request
func (r *PendingCreateRequest) Fields() CreateFields {
	return CreateFields{
		Name:  r.Name,
		Type:  r.Type,
		Price: r.Price,
		Tax:   r.Tax,
		Image: r.Image,
	}
}

// CreateFields user supplied values of a create-product request
type CreateFields struct {
	Name  string
	Type  string
	Price decimal.Decimal
	Tax   decimal.Decimal
	Image []byte // optional JPEG bytes
}

// HasImage reports whether an attachment should be sent
func (f CreateFields) HasImage() bool {
	return len(f.Image) > 0
}

// CreateResult is the remote's answer to a create request. Success is
// authoritative: a well-formed answer with Success=false is a rejection,
// not a transport failure.
type CreateResult struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	ProductID int64   `json:"product_id"`
	Product   Product `json:"product_details"`
}

// ClampTax bounds a tax percentage to [0, 100]
func ClampTax(tax decimal.Decimal) decimal.Decimal {
	if tax.LessThan(zero) {
		return zero
	}
	if tax.GreaterThan(MaxTaxPercent) {
		return MaxTaxPercent
	}
	return tax
}
