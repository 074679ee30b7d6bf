package webapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/internal/reconcile"
	"github.com/talkincode/prodcatalog/internal/viewmodel"
	"go.uber.org/zap"
)

const maxImageSize = 10 << 20

type productPayload struct {
	Name  string `form:"name" validate:"max=200"`
	Type  string `form:"type" validate:"omitempty,max=64"`
	Price string `form:"price" validate:"required,decimal"`
	Tax   string `form:"tax" validate:"omitempty,decimal"`
}

type entryView struct {
	ID          string          `json:"id"`
	Name        string          `json:"product_name"`
	Type        string          `json:"product_type"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
	Tax         decimal.Decimal `json:"tax"`
	IsFavourite bool            `json:"is_favourite"`
}

type pendingView struct {
	ID        string          `json:"id"`
	Name      string          `json:"product_name"`
	Type      string          `json:"product_type"`
	Price     decimal.Decimal `json:"price"`
	Tax       decimal.Decimal `json:"tax"`
	HasImage  bool            `json:"has_image"`
	CreatedAt time.Time       `json:"created_at"`
}

type csvRow struct {
	ID          int64  `csv:"id"`
	Name        string `csv:"product_name"`
	Type        string `csv:"product_type"`
	Price       string `csv:"price"`
	Tax         string `csv:"tax"`
	Image       string `csv:"image"`
	IsFavourite bool   `csv:"is_favourite"`
}

func toViews(entries []*domain.CatalogEntry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{
			ID:          strconv.FormatInt(e.ID, 10),
			Name:        e.Name,
			Type:        e.Type,
			Image:       e.Image,
			Price:       e.Price,
			Tax:         e.Tax,
			IsFavourite: e.IsFavourite,
		})
	}
	return out
}

// registerCatalogRoutes registers the catalog endpoints
func (s *Server) registerCatalogRoutes() {
	g := s.e.Group("/api")
	g.GET("/catalog/products", s.listProducts)
	g.POST("/catalog/products", s.createProduct)
	g.GET("/catalog/favourites", s.listFavourites)
	g.PUT("/catalog/products/:id/favourite", s.toggleFavourite)
	g.POST("/catalog/refresh", s.refresh)
	g.GET("/catalog/pending", s.listPending)
	g.GET("/catalog/feedback", s.getFeedback)
	g.GET("/catalog/export.csv", s.exportCSV)
	g.GET("/catalog/types", s.listTypes)
	g.GET("/connectivity", s.getConnectivity)
}

// listProducts returns the entries matching q, favourites first
func (s *Server) listProducts(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	favs, rest, err := s.vm.Lookup(c.Request().Context(), q)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	rows := toViews(append(favs, rest...))

	page, pageSize := parsePagination(c)
	if pageSize == 0 {
		return ok(c, rows)
	}
	total := int64(len(rows))
	start := len(rows)
	if page-1 <= len(rows)/pageSize {
		start = (page - 1) * pageSize
	}
	if start > len(rows) {
		start = len(rows)
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return paged(c, rows[start:end], total, page, pageSize)
}

func (s *Server) listFavourites(c echo.Context) error {
	favs, _, err := s.vm.Lookup(c.Request().Context(), strings.TrimSpace(c.QueryParam("q")))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query favourites", err.Error())
	}
	return ok(c, toViews(favs))
}

func (s *Server) createProduct(c echo.Context) error {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid product", err.Error())
	}

	form := viewmodel.Form{
		Name:         strings.TrimSpace(payload.Name),
		Type:         strings.TrimSpace(payload.Type),
		SellingPrice: decimal.RequireFromString(payload.Price),
		TaxRate:      decimal.Zero,
	}
	if payload.Tax != "" {
		form.TaxRate = decimal.RequireFromString(payload.Tax)
	}

	image, err := readImage(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_IMAGE", "Unable to read image", err.Error())
	}
	form.Image = image

	status, err := s.vm.Submit(c.Request().Context(), form)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		}
		zap.L().Error("add product failed", zap.String("namespace", "webapi"), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "ADD_FAILED", "Failed to add product", err.Error())
	}
	return accepted(c, map[string]interface{}{"status": status.String(), "product_name": form.Name})
}

func readImage(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	if fh.Size > maxImageSize {
		return nil, errors.Errorf("image exceeds %d bytes", maxImageSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) toggleFavourite(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	fav, err := s.vm.ToggleFavourite(c.Request().Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product", err.Error())
	}
	return ok(c, map[string]interface{}{"id": strconv.FormatInt(id, 10), "is_favourite": fav})
}

func (s *Server) refresh(c echo.Context) error {
	out := s.vm.Refresh(c.Request().Context())
	body := map[string]interface{}{"status": out.Status.String(), "count": out.Count, "favourites": out.Favourites}
	if out.Status == reconcile.RefreshFailed {
		return fail(c, http.StatusBadGateway, "REFRESH_FAILED", out.Err.Error(), body)
	}
	return ok(c, body)
}

func (s *Server) listPending(c echo.Context) error {
	reqs, err := s.vm.Pending(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query pending requests", err.Error())
	}
	out := make([]pendingView, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, pendingView{
			ID:        strconv.FormatInt(r.ID, 10),
			Name:      r.Name,
			Type:      r.Type,
			Price:     r.Price,
			Tax:       r.Tax,
			HasImage:  len(r.Image) > 0,
			CreatedAt: r.CreatedAt,
		})
	}
	return ok(c, out)
}

func (s *Server) getFeedback(c echo.Context) error {
	return ok(c, s.hub.Snapshot())
}

func (s *Server) exportCSV(c echo.Context) error {
	favs, rest, err := s.vm.Lookup(c.Request().Context(), strings.TrimSpace(c.QueryParam("q")))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	rows := make([]*csvRow, 0, len(favs)+len(rest))
	for _, e := range append(favs, rest...) {
		rows = append(rows, &csvRow{
			ID:          e.ID,
			Name:        e.Name,
			Type:        e.Type,
			Price:       e.Price.String(),
			Tax:         e.Tax.String(),
			Image:       e.Image,
			IsFavourite: e.IsFavourite,
		})
	}
	data, err := gocsv.MarshalBytes(rows)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to export products", err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="catalog.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (s *Server) listTypes(c echo.Context) error {
	defaultType, options := s.vm.Types()
	return ok(c, map[string]interface{}{"default": defaultType, "options": options})
}

func (s *Server) getConnectivity(c echo.Context) error {
	return ok(c, map[string]interface{}{"online": s.conn.Online()})
}
