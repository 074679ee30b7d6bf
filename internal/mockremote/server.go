// Package mockremote serves the catalog endpoints from memory, used for
// offline development and end-to-end tests.
package mockremote

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"
	"github.com/talkincode/prodcatalog/internal/domain"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	FetchPath  = "/api/public/get"
	CreatePath = "/api/public/add"
)

// wire shape of a product, prices as JSON numbers
type wireProduct struct {
	Image string  `json:"image"`
	Price float64 `json:"price"`
	Name  string  `json:"product_name"`
	Type  string  `json:"product_type"`
	Tax   float64 `json:"tax"`
}

type createResponse struct {
	Message        string       `json:"message"`
	ProductID      int64        `json:"product_id"`
	Success        bool         `json:"success"`
	ProductDetails *wireProduct `json:"product_details,omitempty"`
}

// Server is an in-memory catalog service
type Server struct {
	mu       sync.Mutex
	products []wireProduct
	images   map[int64][]byte
	nextID   int64
	e        *echo.Echo
}

// SeedProducts is the catalog served when New gets no products
var SeedProducts = []domain.Product{
	{Name: "Testing app", Type: "Product", Price: decimal.RequireFromString("1694.91"), Tax: decimal.NewFromInt(18)},
	{Name: "Widget", Type: "type 1", Price: decimal.RequireFromString("9.99"), Tax: decimal.NewFromInt(5)},
	{Name: "Service plan", Type: "type 2", Price: decimal.NewFromInt(120), Tax: decimal.RequireFromString("12.5")},
}

// New creates a server holding products
func New(products ...domain.Product) *Server {
	s := &Server{images: make(map[int64][]byte), nextID: 1000}
	for _, p := range products {
		s.products = append(s.products, toWire(p))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.OFF)
	e.GET(FetchPath, s.list)
	e.POST(CreatePath, s.create)
	s.e = e
	return s
}

func toWire(p domain.Product) wireProduct {
	return wireProduct{
		Image: p.Image,
		Price: p.Price.InexactFloat64(),
		Name:  p.Name,
		Type:  p.Type,
		Tax:   p.Tax.InexactFloat64(),
	}
}

// Handler exposes the routes for httptest servers
func (s *Server) Handler() http.Handler {
	return s.e
}

// Products returns the current remote catalog
func (s *Server) Products() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, w := range s.products {
		out = append(out, domain.Product{
			Image: w.Image,
			Price: decimal.NewFromFloat(w.Price),
			Name:  w.Name,
			Type:  w.Type,
			Tax:   decimal.NewFromFloat(w.Tax),
		})
	}
	return out
}

// Image returns the attachment received with a product
func (s *Server) Image(productID int64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[productID]
}

// Listen starts serving on addr and returns the bound base URL
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.e.Listener = ln
	go func() {
		if err := s.e.Start(""); err != nil && err != http.ErrServerClosed {
			zap.L().Error("mock remote stopped", zap.String("namespace", "mockremote"), zap.Error(err))
		}
	}()
	url := "http://" + ln.Addr().String()
	zap.L().Info("mock remote listening", zap.String("namespace", "mockremote"), zap.String("url", url))
	return url, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) list(c echo.Context) error {
	s.mu.Lock()
	body, err := json.Marshal(append([]wireProduct{}, s.products...))
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, body)
}

func (s *Server) reply(c echo.Context, resp createResponse) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, body)
}

func (s *Server) create(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("product_name"))
	if name == "" {
		return s.reply(c, createResponse{Message: "product_name is required"})
	}
	price, err := decimal.NewFromString(c.FormValue("price"))
	if err != nil {
		return s.reply(c, createResponse{Message: "invalid price"})
	}
	tax, err := decimal.NewFromString(c.FormValue("tax"))
	if err != nil {
		return s.reply(c, createResponse{Message: "invalid tax"})
	}

	var image []byte
	if fh, err := c.FormFile("files[]"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		image, err = io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	p := wireProduct{
		Price: price.InexactFloat64(),
		Name:  name,
		Type:  c.FormValue("product_type"),
		Tax:   tax.InexactFloat64(),
	}
	if len(image) > 0 {
		p.Image = fmt.Sprintf("mock://images/%d.jpg", id)
		s.images[id] = image
	}
	s.products = append(s.products, p)
	s.mu.Unlock()

	return s.reply(c, createResponse{
		Message:        "Product added Successfully!",
		ProductID:      id,
		Success:        true,
		ProductDetails: &p,
	})
}
