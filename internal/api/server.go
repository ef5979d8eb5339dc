package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"attendancehub/internal/websocket"
	"attendancehub/pkg/types"
)

// Store is the part of the entity store the operational API reads and
// writes.
type Store interface {
	HealthCheck(ctx context.Context) error
	ListDeviceConnections(ctx context.Context) ([]*types.DeviceConnection, error)
	SetLecturerDeviceLocation(ctx context.Context, email, deviceLocation string) error
	SetLevelAdviserPhrase(ctx context.Context, email, phraseHash string) error
}

type Ledger interface {
	List(ctx context.Context) ([]*types.OngoingRequest, error)
}

type Registry interface {
	GetStats() map[string]int
	HasClient(match websocket.Predicate) bool
}

// Server serves health, device and ledger inspection plus the two
// bindings the device handlers depend on. The websocket endpoint is
// mounted on the same router.
type Server struct {
	store    Store
	ledger   Ledger
	registry Registry
	started  time.Time
	echo     *echo.Echo
}

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return requestValidator{validate: v}
}

func (v requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// NewServer builds the router. ws may be nil when no websocket endpoint is
// wanted.
func NewServer(store Store, ledger Ledger, registry Registry, ws http.Handler) *Server {
	s := &Server{
		store:    store,
		ledger:   ledger,
		registry: registry,
		started:  time.Now(),
		echo:     echo.New(),
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(log.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			}).Debug("http request")
			return nil
		},
	}))

	e.GET("/health", s.healthCheck)

	g := e.Group("/api")
	g.GET("/devices", s.listDevices)
	g.GET("/ongoing-requests", s.listOngoingRequests)
	g.PUT("/device-locations/:email", s.setDeviceLocation)
	g.PUT("/level-advisers/:email/phrase", s.setClearPhrase)

	if ws != nil {
		e.GET("/ws", echo.WrapHandler(ws))
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Uptime      string         `json:"uptime"`
}

// DeviceResponse is a persisted device location with its live state.
type DeviceResponse struct {
	*types.DeviceConnection
	Connected bool `json:"connected"`
}

type DeviceLocationRequest struct {
	DeviceLocation string `json:"deviceLocation" validate:"required"`
}

type ClearPhraseRequest struct {
	Phrase string `json:"phrase" validate:"required,min=4"`
}

func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Database:    "healthy",
		Connections: s.registry.GetStats(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}
	code := http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		log.WithError(err).Warn("health check failed")
		resp.Status = "unhealthy"
		resp.Database = "error: " + err.Error()
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func (s *Server) listDevices(c echo.Context) error {
	devices, err := s.store.ListDeviceConnections(c.Request().Context())
	if err != nil {
		return err
	}
	resp := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, DeviceResponse{
			DeviceConnection: d,
			Connected:        s.registry.HasClient(websocket.ByClient(d.DeviceLocation, types.SourceHardware)),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listOngoingRequests(c echo.Context) error {
	requests, err := s.ledger.List(c.Request().Context())
	if err != nil {
		return err
	}
	if requests == nil {
		requests = []*types.OngoingRequest{}
	}
	return c.JSON(http.StatusOK, requests)
}

func (s *Server) setDeviceLocation(c echo.Context) error {
	email := types.NormalizeClientType(c.Param("email"))
	data := new(DeviceLocationRequest)
	if err := c.Bind(data); err != nil {
		return err
	}
	if err := c.Validate(data); err != nil {
		return err
	}

	location := types.NormalizeClientType(data.DeviceLocation)
	if err := s.store.SetLecturerDeviceLocation(c.Request().Context(), email, location); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"email":           email,
		"device_location": location,
	}).Info("device location bound")

	return c.JSON(http.StatusOK, types.LecturerDeviceLocation{
		Email:          email,
		DeviceLocation: location,
		UpdatedAt:      time.Now(),
	})
}

func (s *Server) setClearPhrase(c echo.Context) error {
	email := types.NormalizeClientType(c.Param("email"))
	data := new(ClearPhraseRequest)
	if err := c.Bind(data); err != nil {
		return err
	}
	if err := c.Validate(data); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(data.Phrase), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.store.SetLevelAdviserPhrase(c.Request().Context(), email, string(hash)); err != nil {
		return err
	}
	log.WithField("email", email).Info("clear phrase updated")
	return c.NoContent(http.StatusNoContent)
}
