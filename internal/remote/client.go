package remote

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/internal/remote/multipart"
	"github.com/talkincode/prodcatalog/pkg/common"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is the remote catalog service
type Client interface {
	// FetchAll returns the full remote product list. An empty list is a
	// valid answer.
	FetchAll(ctx context.Context) ([]domain.Product, error)

	// CreateProduct submits a new product. A well-formed answer with
	// success=false is returned as a result, not as an error.
	CreateProduct(ctx context.Context, fields domain.CreateFields) (*domain.CreateResult, error)
}

// HTTPClient talks to the catalog service over HTTP
type HTTPClient struct {
	client    *dataflow.Gout
	fetchURL  string
	createURL string
	encoder   *multipart.Encoder
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client session. The multipart boundary is
// generated here and reused for every request of the session.
func NewHTTPClient(cfg config.RemoteConfig) *HTTPClient {
	hc := &http.Client{}
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPClient{
		client:    gout.New(hc),
		fetchURL:  base + cfg.FetchPath,
		createURL: base + cfg.CreatePath,
		encoder:   multipart.NewEncoder(),
	}
}

// Boundary returns the session boundary token
func (c *HTTPClient) Boundary() string {
	return c.encoder.Boundary
}

func (c *HTTPClient) FetchAll(ctx context.Context) ([]domain.Product, error) {
	var (
		body bytes.Buffer
		code int
	)
	err := c.client.GET(c.fetchURL).
		WithContext(ctx).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		zap.L().Warn("fetch products transport failure",
			zap.String("namespace", "remote"),
			zap.String("url", c.fetchURL),
			zap.Error(err))
		return nil, domain.NewNetworkError("fetch products", err)
	}

	products, err := decodeProducts(body.Bytes())
	if err != nil {
		zap.L().Warn("fetch products decode failure",
			zap.String("namespace", "remote"),
			zap.Int("status", code),
			zap.Error(err))
		return nil, domain.NewDecodeError("fetch products", errors.Wrapf(err, "status %d", code))
	}

	zap.L().Debug("fetched products",
		zap.String("namespace", "remote"),
		zap.Int("status", code),
		zap.Int("count", len(products)))
	return products, nil
}

func (c *HTTPClient) CreateProduct(ctx context.Context, fields domain.CreateFields) (*domain.CreateResult, error) {
	payload := c.EncodeCreate(fields)

	var (
		body bytes.Buffer
		code int
	)
	err := c.client.POST(c.createURL).
		WithContext(ctx).
		SetHeader(gout.H{"Content-Type": c.encoder.ContentType()}).
		SetBody(payload).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		zap.L().Warn("create product transport failure",
			zap.String("namespace", "remote"),
			zap.String("product", fields.Name),
			zap.Error(err))
		return nil, domain.NewNetworkError("create product", err)
	}

	zap.L().Debug("create product raw response",
		zap.String("namespace", "remote"),
		zap.Int("status", code),
		zap.ByteString("body", body.Bytes()))

	result, err := decodeCreateResult(body.Bytes())
	if err != nil {
		zap.L().Warn("create product decode failure",
			zap.String("namespace", "remote"),
			zap.String("product", fields.Name),
			zap.Int("status", code),
			zap.Error(err))
		return nil, domain.NewDecodeError("create product", errors.Wrapf(err, "status %d", code))
	}
	if !result.Success {
		zap.L().Info("create product rejected by remote",
			zap.String("namespace", "remote"),
			zap.String("product", fields.Name),
			zap.String("message", result.Message))
	}
	return result, nil
}

// EncodeCreate builds the multipart body of a create request
func (c *HTTPClient) EncodeCreate(fields domain.CreateFields) []byte {
	var att *multipart.Attachment
	if fields.HasImage() {
		att = multipart.JPEGAttachment(fields.Image)
	}
	return c.encoder.Encode(CreateFormFields(fields), att)
}

// CreateFormFields maps create fields onto the form field names understood
// by the catalog service, in a fixed order.
func CreateFormFields(fields domain.CreateFields) []multipart.Field {
	return []multipart.Field{
		{Name: "product_name", Value: fields.Name},
		{Name: "product_type", Value: fields.Type},
		{Name: "price", Value: fields.Price.String()},
		{Name: "tax", Value: fields.Tax.String()},
	}
}

// wireProduct mirrors the remote product object. Every key is required and
// numbers must be JSON numbers.
type wireProduct struct {
	Image *string             `json:"image"`
	Price jsoniter.RawMessage `json:"price"`
	Name  *string             `json:"product_name"`
	Type  *string             `json:"product_type"`
	Tax   jsoniter.RawMessage `json:"tax"`
}

func (w wireProduct) product() (domain.Product, error) {
	var p domain.Product
	switch {
	case w.Image == nil:
		return p, errors.New("missing image")
	case w.Name == nil:
		return p, errors.New("missing product_name")
	case w.Type == nil:
		return p, errors.New("missing product_type")
	}
	price, err := parseNumber("price", w.Price)
	if err != nil {
		return p, err
	}
	tax, err := parseNumber("tax", w.Tax)
	if err != nil {
		return p, err
	}
	p = domain.Product{Image: *w.Image, Price: price, Name: *w.Name, Type: *w.Type, Tax: tax}
	if err := domain.ValidateProduct(p); err != nil {
		return p, err
	}
	return p, nil
}

func parseNumber(key string, raw jsoniter.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, errors.Errorf("missing %s", key)
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return decimal.Zero, errors.Errorf("%s is not a number", key)
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}

func decodeProducts(data []byte) ([]domain.Product, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("response is not a JSON array")
	}
	var wire []*wireProduct
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, errors.Wrap(err, "unmarshal products")
	}
	products := make([]domain.Product, 0, len(wire))
	for i, w := range wire {
		if w == nil {
			return nil, errors.Errorf("product %d is null", i)
		}
		p, err := w.product()
		if err != nil {
			return nil, errors.Wrapf(err, "product %d", i)
		}
		p.ID = common.UUIDint64()
		products = append(products, p)
	}
	return products, nil
}

type createResponse struct {
	Message        string       `json:"message"`
	ProductID      int64        `json:"product_id"`
	Success        *bool        `json:"success"`
	ProductDetails *wireProduct `json:"product_details"`
}

func decodeCreateResult(data []byte) (*domain.CreateResult, error) {
	var resp createResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal create response")
	}
	if resp.Success == nil {
		return nil, errors.New("create response has no success flag")
	}
	result := &domain.CreateResult{
		Success:   *resp.Success,
		Message:   resp.Message,
		ProductID: resp.ProductID,
	}
	if resp.ProductDetails != nil {
		p, err := resp.ProductDetails.product()
		if err != nil {
			return nil, errors.Wrap(err, "product_details")
		}
		p.ID = common.UUIDint64()
		result.Product = p
	}
	return result, nil
}
