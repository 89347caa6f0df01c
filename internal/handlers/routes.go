package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/imrishuroy/merchant-orderdesk/internal/alerts"
	"github.com/imrishuroy/merchant-orderdesk/internal/idempotency"
	"github.com/imrishuroy/merchant-orderdesk/internal/metrics"
	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
	"github.com/imrishuroy/merchant-orderdesk/internal/poller"
	"github.com/imrishuroy/merchant-orderdesk/internal/session"
	"github.com/imrishuroy/merchant-orderdesk/internal/workflow"
)

const userKey = "orderdesk.user"

// ProductSource feeds the dashboard low-stock widget.
type ProductSource interface {
	GetProductsByMerchant(ctx context.Context, merchantID string) ([]orders.Product, error)
}

// HandlerConfig groups dependencies for the order desk routes.
type HandlerConfig struct {
	Store             *orders.Store
	Workflow          *workflow.Workflow
	Poller            *poller.Poller
	Alerts            *alerts.Center
	Session           session.Provider
	Products          ProductSource      // optional
	Idempotency       *idempotency.Store // optional; Idempotency-Key is ignored without it
	LowStockThreshold int
	WaitTimeout       time.Duration // upper bound for ?wait=true
}

// NewRouter builds the engine with health, metrics and all order desk routes.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), observe())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	RegisterOrdersRoutes(r, cfg)
	return r
}

// RegisterOrdersRoutes registers every session-guarded route.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = orders.DefaultLowStockThreshold
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = workflow.DefaultUpdateTimeout
	}
	h := newOrdersHandler(cfg)

	g := r.Group("/", requireSession(cfg.Session))
	g.GET("/orders", h.list)
	g.GET("/orders/counts", h.counts)
	g.POST("/orders/refresh", h.refresh)
	g.GET("/orders/:id", h.get)
	g.POST("/orders/:id/advance", h.transition(workflow.ActionAdvance))
	g.POST("/orders/:id/cancel", h.transition(workflow.ActionCancel))
	g.POST("/orders/:id/transition", h.transitionFromBody)

	g.GET("/dashboard", h.dashboard)
	g.GET("/alerts", h.listAlerts)
	g.DELETE("/alerts/:id", h.dismissAlert)
	g.GET("/settings/sound", h.getSound)
	g.PUT("/settings/sound", h.putSound)
}

// requireSession blocks every route until the session collaborator reports a user.
func requireSession(p session.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := p.CurrentUser(c.Request.Context())
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login_required"})
				return
			}
			log.Error().Err(err).Msg("session lookup failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session_unavailable"})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

func currentUser(c *gin.Context) *session.User {
	u, _ := c.Get(userKey)
	user, _ := u.(*session.User)
	return user
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set("X-Request-Id", id)
		}
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		log.Debug().
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("request_id", c.GetHeader("X-Request-Id")).
			Msg("http request")
	}
}
