package webapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/connectivity"
	"github.com/talkincode/prodcatalog/internal/feedback"
	"github.com/talkincode/prodcatalog/internal/viewmodel"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the local HTTP surface of the catalog
type Server struct {
	cfg  config.WebConfig
	e    *echo.Echo
	vm   *viewmodel.ViewModel
	conn connectivity.Service
	hub  *feedback.Hub
}

// NewServer wires the catalog routes
func NewServer(cfg config.WebConfig, vm *viewmodel.ViewModel, conn connectivity.Service, hub *feedback.Hub) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.WARN)
	e.JSONSerializer = jsonSerializer{}
	e.Validator = newRequestValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			zap.L().Debug("http request",
				zap.String("namespace", "webapi"),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	s := &Server{cfg: cfg, e: e, vm: vm, conn: conn, hub: hub}
	s.registerCatalogRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	zap.L().Info("catalog web api listening", zap.String("namespace", "webapi"), zap.String("addr", addr))
	err := s.e.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i interface{}) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	_ = v.RegisterValidation("decimal", validateDecimal)
	return &requestValidator{v: v}
}

func (r *requestValidator) Validate(i interface{}) error {
	return r.v.Struct(i)
}

func validateDecimal(fl validator.FieldLevel) bool {
	_, err := decimal.NewFromString(fl.Field().String())
	return err == nil
}

type errorBody struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"data": data})
}

func accepted(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusAccepted, map[string]interface{}{"data": data})
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, errorBody{Error: code, Message: message, Detail: detail})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":     data,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// parsePagination reads page and perPage (or pageSize), 0 pageSize means all
func parsePagination(c echo.Context) (page, pageSize int) {
	page = 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	raw := c.QueryParam("perPage")
	if raw == "" {
		raw = c.QueryParam("pageSize")
	}
	if ps, err := strconv.Atoi(raw); err == nil && ps > 0 && ps <= 500 {
		pageSize = ps
	}
	return page, pageSize
}
