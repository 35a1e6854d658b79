package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yourorg/klarna-payments-gateway/internal/classifier"
	"github.com/yourorg/klarna-payments-gateway/internal/config"
	"github.com/yourorg/klarna-payments-gateway/internal/events"
	"github.com/yourorg/klarna-payments-gateway/internal/gateway"
	"github.com/yourorg/klarna-payments-gateway/internal/health"
	"github.com/yourorg/klarna-payments-gateway/internal/klarna"
	"github.com/yourorg/klarna-payments-gateway/internal/metrics"
	"github.com/yourorg/klarna-payments-gateway/internal/monitor"
	"github.com/yourorg/klarna-payments-gateway/internal/orderstate"
	"github.com/yourorg/klarna-payments-gateway/internal/policy"
	"github.com/yourorg/klarna-payments-gateway/internal/reporting"
	"github.com/yourorg/klarna-payments-gateway/internal/request"
	"github.com/yourorg/klarna-payments-gateway/internal/session"
	"github.com/yourorg/klarna-payments-gateway/internal/validator"
)

// orderRegistry holds the orders known to this process, keyed by order
// id. Orders are created lazily on first reference.
type orderRegistry struct {
	mu          sync.Mutex
	orders      map[string]*orderstate.MemoryOrder
	methodTitle string
}

func newOrderRegistry(methodTitle string) *orderRegistry {
	return &orderRegistry{
		orders:      make(map[string]*orderstate.MemoryOrder),
		methodTitle: methodTitle,
	}
}

func (r *orderRegistry) lookup(id string) *orderstate.MemoryOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		order = orderstate.NewMemoryOrder(id, r.methodTitle)
		r.orders[id] = order
	}
	return order
}

type server struct {
	cfg      config.Config
	gateway  *gateway.Gateway
	client   *klarna.Client
	orders   *orderRegistry
	monitor  *monitor.ContractMonitor
	recorder *reporting.Recorder
	registry *prometheus.Registry
}

// reviewRules are the default pending-order escalation rules. Every
// order Klarna leaves in fraud review gets a note and a notification
// for order management.
var reviewRules = []policy.Rule{
	{
		ID:         "pending_manual_review",
		Expression: "fraud_status == 'PENDING'",
		Decision: policy.Decision{
			EscalateManual: true,
			Note:           "Order flagged for manual fraud review.",
		},
	},
}

func newServer(cfg config.Config) (*server, error) {
	store := session.NewMemoryStore()
	emitter := events.NewRegistry()
	emitter.Subscribe(events.EventNotification, func(orderID string, payload interface{}) {
		log.Printf("Server: notification for order %s: %v", orderID, payload)
	})

	client := klarna.NewClient(cfg, nil)
	client.AddCreateTransform(klarna.StyleTransform(cfg.Style))

	review, err := policy.NewReviewPolicy(reviewRules)
	if err != nil {
		return nil, err
	}

	driver := orderstate.NewDriver(store, emitter, review, string(cfg.Environment), cfg.Country)

	promReg := prometheus.NewRegistry()
	recorder := reporting.NewRecorder()

	gw := gateway.New(cfg, client, store, request.NewBuilder(cfg), driver, health.NewBreaker(), emitter)
	gw.SetMetrics(metrics.New(promReg))
	gw.SetRecorder(recorder)

	mon, err := monitor.NewAuthorizationMonitor()
	if err != nil {
		return nil, err
	}

	return &server{
		cfg:      cfg,
		gateway:  gw,
		client:   client,
		orders:   newOrderRegistry(cfg.Title),
		monitor:  mon,
		recorder: recorder,
		registry: promReg,
	}, nil
}

type cartLine struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	TaxRate   int64  `json:"tax_rate"`
}

type sessionPayload struct {
	OrderLines []cartLine `json:"order_lines"`
}

func (p sessionPayload) cart() request.Cart {
	var cart request.Cart
	for _, l := range p.OrderLines {
		cart.Lines = append(cart.Lines, request.CartLine{
			Reference: l.Reference,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			TaxRate:   l.TaxRate,
		})
	}
	return cart
}

func sessionErrorStatus(err error) int {
	if errors.Is(err, gateway.ErrUnavailable) {
		return http.StatusServiceUnavailable
	}
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	var apiErr *klarna.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	var terr *klarna.TransportError
	if errors.As(err, &terr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *server) handleAvailability(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"available": s.gateway.IsAvailable(),
		"title":     s.cfg.Title,
	})
}

// handleSession creates or refreshes the Klarna session for the cart
// snapshot in the request and returns the session identifiers the
// checkout page needs.
func (s *server) handleSession(c *gin.Context) {
	if !s.gateway.IsAvailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Klarna Payments is not available"})
		return
	}

	var payload sessionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	if err := s.gateway.UpdateSession(c.Request.Context(), payload.cart()); err != nil {
		log.Printf("Server: session call failed: %v", err)
		status := sessionErrorStatus(err)
		if status == http.StatusBadGateway {
			// Klarna failed mid-checkout: hand back the checkout failure
			// result (user-visible notice + reload) rather than a bare
			// error string.
			c.JSON(status, s.gateway.HandleAuthorizationFailure(err))
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	current, ok := s.gateway.CurrentSession()
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no session after successful call"})
		return
	}
	c.JSON(http.StatusOK, current)
}

type authorizationPayload struct {
	OrderID       string          `json:"order_id"`
	Authorization json.RawMessage `json:"authorization"`
}

// handleAuthorization consumes the authorization callback delivered by
// the checkout return flow and drives the order accordingly.
func (s *server) handleAuthorization(c *gin.Context) {
	var payload authorizationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if payload.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed: order_id is required"})
		return
	}

	valid, violations, err := s.monitor.Validate(payload.Authorization)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(violations)})
		return
	}

	var auth classifier.AuthorizationResult
	if err := json.Unmarshal(payload.Authorization, &auth); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid authorization payload: " + err.Error()})
		return
	}

	order := s.orders.lookup(payload.OrderID)
	result, err := s.gateway.HandleAuthorization(order, auth)
	if err != nil {
		log.Printf("Server: authorization for order %s failed: %v", payload.OrderID, err)
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

type refundPayload struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *server) handleRefund(c *gin.Context) {
	var payload refundPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	handled, err := s.gateway.ProcessRefund(c.Param("order_id"), payload.Amount, payload.Reason)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if !handled {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no refund handler registered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunded": true})
}

func (s *server) handleNotification(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	s.gateway.Notify(c.Param("order_id"), payload)
	c.Status(http.StatusNoContent)
}

func (s *server) handleRetrospective(c *gin.Context) {
	c.JSON(http.StatusOK, reporting.GenerateRetrospective(s.recorder.Entries()))
}

func (s *server) routes() *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("klarna-payments-gateway"))

	router.GET("/availability", s.handleAvailability)
	router.POST("/checkout/session", s.handleSession)
	router.POST("/checkout/authorization", s.handleAuthorization)
	router.POST("/orders/:order_id/refund", s.handleRefund)
	router.POST("/notifications/:order_id", s.handleNotification)
	router.GET("/retrospective", s.handleRetrospective)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	return router
}

func initTracing() func() {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Fatalf("Failed to create trace exporter: %v", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		}
	}
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdown := initTracing()
	defer shutdown()

	srv, err := newServer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	log.Println("Starting server...")
	if err := srv.routes().Run(":8080"); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
