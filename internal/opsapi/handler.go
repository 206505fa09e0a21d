// Package opsapi exposes the executor's operations surface over HTTP.
package opsapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/approval"
	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/observability"
	"solana-trade-executor/internal/rpcpool"
	"solana-trade-executor/internal/storage"
)

var (
	errMissingSigner = errors.New("signer_id, signature and public_key are required")
	errNotConfigured = errors.New("not configured")
)

// Approvals is the approval workflow surface the API drives.
type Approvals interface {
	Get(id string) (*approval.Request, error)
	List(status approval.Status) []*approval.Request
	Approve(ctx context.Context, id, signerID, signature, publicKey string) (*approval.Request, error)
	Reject(ctx context.Context, id, reason string) (*approval.Request, error)
	Cancel(ctx context.Context, id string) (*approval.Request, error)
}

// Endpoints reports RPC pool state.
type Endpoints interface {
	Snapshot() []rpcpool.Health
	Active() string
}

// Routes drops cached venue routes.
type Routes interface {
	Invalidate(ctx context.Context, token string)
}

// Executor runs one trade to completion.
type Executor interface {
	Execute(ctx context.Context, req domain.TradeRequest) *domain.TradeResult
}

// Deps wires the handler. Results, Events and Executor are optional.
type Deps struct {
	Name      string
	Approvals Approvals
	Endpoints Endpoints
	Routes    Routes
	Executor  Executor
	Results   storage.TradeResultStore
	Events    storage.ApprovalEventStore
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
	Clock     func() time.Time
}

// Handler serves the operations API.
type Handler struct {
	router  *gin.Engine
	deps    Deps
	started time.Time
	log     zerolog.Logger
}

// NewHandler builds the gin engine and registers every route.
func NewHandler(deps Deps) *Handler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:  router,
		deps:    deps,
		started: deps.Clock(),
		log:     deps.Logger.With().Str("component", "opsapi").Logger(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.health)
	h.router.GET("/metrics", gin.WrapH(h.deps.Metrics.Handler()))
	h.router.GET("/status", h.status)
	h.router.GET("/endpoints", h.endpoints)

	approvals := h.router.Group("/approvals")
	{
		approvals.GET("", h.listApprovals)
		approvals.GET("/:id", h.getApproval)
		approvals.GET("/:id/events", h.approvalEvents)
		approvals.POST("/:id/approve", h.approve)
		approvals.POST("/:id/reject", h.reject)
		approvals.POST("/:id/cancel", h.cancel)
	}

	h.router.DELETE("/routes/:token", h.invalidateRoute)

	trades := h.router.Group("/trades")
	{
		trades.POST("", h.executeTrade)
		trades.GET("", h.listTrades)
		trades.GET("/:id", h.getTrade)
	}
}

func (h *Handler) health(c *gin.Context) {
	if h.deps.Endpoints != nil && h.deps.Endpoints.Active() == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "reason": "no healthy rpc endpoint"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type statusResponse struct {
	Name             string    `json:"name"`
	StartedAt        time.Time `json:"started_at"`
	Uptime           string    `json:"uptime"`
	ActiveEndpoint   string    `json:"active_endpoint"`
	HealthyEndpoints int       `json:"healthy_endpoints"`
	TotalEndpoints   int       `json:"total_endpoints"`
	PendingApprovals int       `json:"pending_approvals"`
}

func (h *Handler) status(c *gin.Context) {
	resp := statusResponse{
		Name:      h.deps.Name,
		StartedAt: h.started,
		Uptime:    h.deps.Clock().Sub(h.started).Truncate(time.Second).String(),
	}
	if h.deps.Endpoints != nil {
		resp.ActiveEndpoint = h.deps.Endpoints.Active()
		for _, ep := range h.deps.Endpoints.Snapshot() {
			resp.TotalEndpoints++
			if ep.Healthy {
				resp.HealthyEndpoints++
			}
		}
	}
	if h.deps.Approvals != nil {
		resp.PendingApprovals = len(h.deps.Approvals.List(approval.StatusPending))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) endpoints(c *gin.Context) {
	if h.deps.Endpoints == nil {
		writeError(c, http.StatusNotImplemented, errNotConfigured)
		return
	}
	c.JSON(http.StatusOK, h.deps.Endpoints.Snapshot())
}

func (h *Handler) listApprovals(c *gin.Context) {
	status := approval.Status(c.Query("status"))
	switch status {
	case "", approval.StatusPending, approval.StatusApproved, approval.StatusRejected,
		approval.StatusExpired, approval.StatusCancelled:
	default:
		writeError(c, http.StatusBadRequest, errors.New("unknown status filter"))
		return
	}
	c.JSON(http.StatusOK, h.deps.Approvals.List(status))
}

func (h *Handler) getApproval(c *gin.Context) {
	req, err := h.deps.Approvals.Get(c.Param("id"))
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) approvalEvents(c *gin.Context) {
	if h.deps.Events == nil {
		writeError(c, http.StatusNotImplemented, errNotConfigured)
		return
	}
	events, err := h.deps.Events.GetByRequestID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, events)
}

type approvePayload struct {
	SignerID  string `json:"signer_id"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

func (h *Handler) approve(c *gin.Context) {
	var payload approvePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if payload.SignerID == "" || payload.Signature == "" || payload.PublicKey == "" {
		writeError(c, http.StatusBadRequest, errMissingSigner)
		return
	}

	req, err := h.deps.Approvals.Approve(c.Request.Context(), c.Param("id"), payload.SignerID, payload.Signature, payload.PublicKey)
	if err != nil {
		h.log.Warn().Err(err).Str("approval_id", c.Param("id")).Str("signer_id", payload.SignerID).Msg("approve refused")
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(c *gin.Context) {
	var payload rejectPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
	}

	req, err := h.deps.Approvals.Reject(c.Request.Context(), c.Param("id"), payload.Reason)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) cancel(c *gin.Context) {
	req, err := h.deps.Approvals.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) invalidateRoute(c *gin.Context) {
	if h.deps.Routes == nil {
		writeError(c, http.StatusNotImplemented, errNotConfigured)
		return
	}
	h.deps.Routes.Invalidate(c.Request.Context(), c.Param("token"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) executeTrade(c *gin.Context) {
	if h.deps.Executor == nil {
		writeError(c, http.StatusNotImplemented, errNotConfigured)
		return
	}
	var req domain.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	res := h.deps.Executor.Execute(c.Request.Context(), req)
	switch {
	case res.Success:
		c.JSON(http.StatusOK, res)
	case res.ErrorCode == domain.CodeInvalidInput:
		c.JSON(http.StatusBadRequest, res)
	default:
		c.JSON(http.StatusUnprocessableEntity, res)
	}
}

func (h *Handler) listTrades(c *gin.Context) {
	if h.deps.Results == nil {
		writeError(c, http.StatusNotImplemented, errNotConfigured)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		limit = n
	}

	var (
		results []*domain.TradeResult
		err     error
	)
	if token := c.Query("token"); token != "" {
		results, err = h.deps.Results.GetByToken(c.Request.Context(), token, limit)
	} else {
		results, err = h.deps.Results.GetRecent(c.Request.Context(), limit)
	}
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) getTrade(c *gin.Context) {
	if h.deps.Results == nil {
		writeError(c, http.StatusNotImplemented, errNotConfigured)
		return
	}
	res, err := h.deps.Results.GetByTradeID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, approval.ErrAlreadyResolved), errors.Is(err, approval.ErrDuplicateSigner),
		errors.Is(err, domain.ErrApprovalExpired), errors.Is(err, domain.ErrApprovalRejected),
		errors.Is(err, domain.ErrApprovalCancelled):
		return http.StatusConflict
	case errors.Is(err, approval.ErrInvalidSignature), errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
