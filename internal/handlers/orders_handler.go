package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/imrishuroy/merchant-orderdesk/internal/idempotency"
	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
	"github.com/imrishuroy/merchant-orderdesk/internal/poller"
	"github.com/imrishuroy/merchant-orderdesk/internal/session"
	"github.com/imrishuroy/merchant-orderdesk/internal/validation"
	"github.com/imrishuroy/merchant-orderdesk/internal/workflow"
)

type ordersHandler struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

func newOrdersHandler(cfg HandlerConfig) *ordersHandler {
	return &ordersHandler{cfg: cfg, v: validation.New()}
}

// orderView is an order plus everything a front end needs to render its row.
type orderView struct {
	orders.Order
	Display    orders.Display `json:"display"`
	Progress   int            `json:"progress"`
	NextStatus orders.Status  `json:"nextStatus,omitempty"`
	CanAdvance bool           `json:"canAdvance"`
	CanCancel  bool           `json:"canCancel"`
	Updating   bool           `json:"updating"`
}

func (h *ordersHandler) view(o orders.Order) orderView {
	v := orderView{
		Order:     o,
		Display:   orders.DisplayFor(o.Status),
		Progress:  orders.Progress(o.Status),
		CanCancel: orders.CanCancel(o.Status),
	}
	if next, ok := orders.NextStatus(o.Status); ok {
		v.NextStatus = next
		v.CanAdvance = true
	}
	if h.cfg.Workflow != nil {
		v.Updating = h.cfg.Workflow.Updating(o.ID)
		if v.Updating {
			v.CanAdvance, v.CanCancel = false, false
		}
	}
	return v
}

func (h *ordersHandler) list(c *gin.Context) {
	var q validation.ListOrdersQuery
	if err := validation.BindQueryAndValidate(c, &q, h.v); err != nil {
		return
	}
	filter := q.Filter()
	found := h.cfg.Store.FilterByStatus(filter)
	views := make([]orderView, 0, len(found))
	for _, o := range found {
		views = append(views, h.view(o))
	}
	body := gin.H{
		"orders": views,
		"filter": filter,
		"loaded": h.cfg.Store.Loaded(),
	}
	if h.cfg.Poller != nil {
		body["lastRefresh"] = h.cfg.Poller.LastResult()
	}
	c.JSON(http.StatusOK, body)
}

func (h *ordersHandler) counts(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Store.CountByStatus())
}

func (h *ordersHandler) get(c *gin.Context) {
	o, ok := h.cfg.Store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
		return
	}
	c.JSON(http.StatusOK, h.view(o))
}

func (h *ordersHandler) transitionFromBody(c *gin.Context) {
	var req validation.TransitionRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}
	h.doTransition(c, workflow.Action(req.Action))
}

func (h *ordersHandler) transition(action workflow.Action) gin.HandlerFunc {
	return func(c *gin.Context) { h.doTransition(c, action) }
}

// reply is a response that can also be stored for Idempotency-Key replays.
type reply struct {
	status int
	body   []byte
}

func jsonReply(status int, v any) reply {
	b, err := json.Marshal(v)
	if err != nil {
		return reply{status: http.StatusInternalServerError, body: []byte(`{"error":"encode_failed"}`)}
	}
	return reply{status: status, body: b}
}

func (h *ordersHandler) doTransition(c *gin.Context, action workflow.Action) {
	ctx := c.Request.Context()
	orderID := c.Param("id")

	key := ""
	if raw := c.GetHeader("Idempotency-Key"); raw != "" && h.cfg.Idempotency != nil {
		key = idempotency.ScopedKey(currentUser(c).MerchantID, raw)
		rec, err := h.cfg.Idempotency.Begin(ctx, key, orderID, string(action))
		switch {
		case errors.Is(err, idempotency.ErrKeyReused):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused"})
			return
		case err != nil:
			log.Error().Err(err).Str("order_id", orderID).Msg("idempotency check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
			return
		case rec != nil:
			replay(c, rec)
			return
		}
	}

	m, err := h.cfg.Workflow.Apply(ctx, orderID, action)
	if err != nil {
		out := h.rejected(orderID, err)
		h.settle(ctx, key, nil, err)
		c.Data(out.status, "application/json", out.body)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); !wait {
		out := jsonReply(http.StatusAccepted, gin.H{"order": h.view(m.Order), "previous": m.Previous, "pending": true})
		h.settle(ctx, key, m, nil)
		c.Data(out.status, "application/json", out.body)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, h.cfg.WaitTimeout)
	defer cancel()
	err = m.Wait(wctx)
	var out reply
	switch {
	case err == nil:
		cur, _ := h.cfg.Store.Get(orderID)
		out = jsonReply(http.StatusOK, gin.H{"order": h.view(cur), "previous": m.Previous})
	case errors.Is(err, workflow.ErrPersistFailed):
		cur, _ := h.cfg.Store.Get(orderID)
		out = jsonReply(http.StatusBadGateway, gin.H{"error": "update_failed", "detail": err.Error(), "order": h.view(cur)})
	default:
		// caller stopped waiting; the persist keeps running
		out = jsonReply(http.StatusAccepted, gin.H{"order": h.view(m.Order), "previous": m.Previous, "pending": true})
	}
	h.settle(ctx, key, m, nil)
	c.Data(out.status, "application/json", out.body)
}

func (h *ordersHandler) rejected(orderID string, err error) reply {
	switch {
	case errors.Is(err, workflow.ErrOrderNotFound):
		return jsonReply(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, workflow.ErrNoTransition), errors.Is(err, workflow.ErrNotCancellable):
		cur, _ := h.cfg.Store.Get(orderID)
		return jsonReply(http.StatusConflict, gin.H{"error": "invalid_transition", "detail": err.Error(), "order": h.view(cur)})
	case errors.Is(err, workflow.ErrUpdateInFlight):
		return jsonReply(http.StatusConflict, gin.H{"error": "update_in_progress"})
	default:
		return jsonReply(http.StatusBadRequest, gin.H{"error": "invalid_action", "detail": err.Error()})
	}
}

// settle records the outcome under the idempotency key once the persist is
// known. Only a saved change is stored as DONE (a 200 with the persisted
// order). A rejected request or a failed persist marks the key FAILED, so a
// retry with the same key runs again instead of replaying the rejection.
func (h *ordersHandler) settle(ctx context.Context, key string, m *workflow.Mutation, rejection error) {
	if key == "" {
		return
	}
	store := h.cfg.Idempotency
	bg := context.WithoutCancel(ctx)
	fail := func(err error) {
		if err := store.MarkFailed(bg, key, err.Error()); err != nil {
			log.Warn().Err(err).Msg("mark idempotency key failed")
		}
	}
	if m == nil {
		fail(rejection)
		return
	}
	go func() {
		<-m.Done()
		if err := m.Err(); err != nil {
			fail(err)
			return
		}
		out := jsonReply(http.StatusOK, gin.H{"order": h.view(m.Order), "previous": m.Previous})
		if err := store.MarkDone(bg, key, string(out.body), out.status); err != nil {
			log.Warn().Err(err).Msg("mark idempotency key done")
		}
	}()
}

func replay(c *gin.Context, rec *idempotency.Record) {
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "order_id": rec.OrderID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

func (h *ordersHandler) refresh(c *gin.Context) {
	res, err := h.cfg.Poller.Refresh(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, poller.ErrRefreshInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "refresh_in_progress"})
	case errors.Is(err, session.ErrNoSession):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login_required"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh_failed", "detail": res.Error})
	}
}

func (h *ordersHandler) dashboard(c *gin.Context) {
	body := gin.H{
		"summary":           h.cfg.Store.Summary(),
		"lowStock":          []orders.Product{},
		"lowStockThreshold": h.cfg.LowStockThreshold,
	}
	if h.cfg.Products != nil {
		products, err := h.cfg.Products.GetProductsByMerchant(c.Request.Context(), currentUser(c).MerchantID)
		if err != nil {
			log.Warn().Err(err).Msg("load products for dashboard")
			body["productsError"] = fmt.Sprintf("could not load products: %v", err)
		} else {
			body["lowStock"] = orders.LowStock(products, h.cfg.LowStockThreshold)
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *ordersHandler) listAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": h.cfg.Alerts.List()})
}

func (h *ordersHandler) dismissAlert(c *gin.Context) {
	if !h.cfg.Alerts.Dismiss(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert_not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ordersHandler) getSound(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.cfg.Poller.SoundEnabled()})
}

func (h *ordersHandler) putSound(c *gin.Context) {
	var req validation.SoundRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	h.cfg.Poller.SetSoundEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}
