package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/module/intent"
	"github.com/tiffinbox/checkout/internal/module/payment"
	"github.com/tiffinbox/checkout/internal/module/wallet"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
	"github.com/tiffinbox/checkout/internal/shared/middleware"
	"github.com/tiffinbox/checkout/internal/shared/response"
)

// lifecycleMappings translate payment lifecycle errors for clients.
var lifecycleMappings = []response.ErrorMapping{
	{Err: payment.ErrAlreadyProcessing, Status: http.StatusConflict, Code: "PAYMENT_IN_PROGRESS", Message: "a payment is already in progress"},
	{Err: payment.ErrNotProcessing, Status: http.StatusConflict, Code: "NO_ACTIVE_PAYMENT", Message: "no payment attempt is in progress"},
	{Err: payment.ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_STATE", Message: "the payment attempt cannot change state this way"},
}

// Handler exposes the checkout flow over HTTP.
type Handler struct {
	orch     *Orchestrator
	intents  *intent.Store
	wallet   *wallet.Service
	gateways *payment.ProviderRegistry
	logger   *zap.Logger
}

// NewHandler creates a checkout handler.
func NewHandler(orch *Orchestrator, intents *intent.Store, walletSvc *wallet.Service, gateways *payment.ProviderRegistry, logger *zap.Logger) *Handler {
	return &Handler{
		orch:     orch,
		intents:  intents,
		wallet:   walletSvc,
		gateways: gateways,
		logger:   logger,
	}
}

// RegisterRoutes registers the checkout routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/checkout", h.Start)
	rg.GET("/checkout/state", h.State)
	rg.POST("/checkout/resume", h.Resume)
	rg.POST("/checkout/reset", h.Reset)
	rg.POST("/checkout/callbacks/:provider/success", h.CallbackSuccess)
	rg.POST("/checkout/callbacks/:provider/failure", h.CallbackFailure)
	rg.POST("/checkout/callbacks/:provider/dismiss", h.CallbackDismiss)

	rg.GET("/wallet/preview", h.WalletPreview)

	rg.GET("/intent", h.GetIntent)
	rg.PUT("/intent/plan", h.PutPlanIntent)
	rg.PUT("/intent/source-route", h.PutSourceRoute)
	rg.PUT("/intent/pincode", h.PutPincode)
	rg.DELETE("/intent", h.ClearIntent)

	rg.GET("/gateway/:provider/script", h.GatewayScript)
}

// Start handles POST /checkout.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.orch.Start(c.Request.Context(), middleware.GetSessionID(c), middleware.GetUserID(c), req)
	if err != nil {
		h.flowError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// State handles GET /checkout/state.
func (h *Handler) State(c *gin.Context) {
	state, err := h.orch.State(c.Request.Context(), middleware.GetSessionID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// Resume handles POST /checkout/resume.
func (h *Handler) Resume(c *gin.Context) {
	result, err := h.orch.Resume(c.Request.Context(), middleware.GetSessionID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reset handles POST /checkout/reset.
func (h *Handler) Reset(c *gin.Context) {
	state, err := h.orch.Reset(c.Request.Context(), middleware.GetSessionID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// CallbackSuccess handles POST /checkout/callbacks/:provider/success.
func (h *Handler) CallbackSuccess(c *gin.Context) {
	var payload json.RawMessage
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.BadRequest(c, "invalid callback payload")
		return
	}

	result, err := h.orch.HandleSuccess(c.Request.Context(), middleware.GetSessionID(c), c.Param("provider"), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CallbackFailure handles POST /checkout/callbacks/:provider/failure.
func (h *Handler) CallbackFailure(c *gin.Context) {
	var payload json.RawMessage
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.BadRequest(c, "invalid callback payload")
		return
	}

	result, err := h.orch.HandleFailure(c.Request.Context(), middleware.GetSessionID(c), c.Param("provider"), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CallbackDismiss handles POST /checkout/callbacks/:provider/dismiss. A late
// dismiss for a settled attempt is acknowledged without content.
func (h *Handler) CallbackDismiss(c *gin.Context) {
	result, err := h.orch.HandleDismiss(c.Request.Context(), middleware.GetSessionID(c), c.Param("provider"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !result.Applied {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, result)
}

// WalletPreview handles GET /wallet/preview.
func (h *Handler) WalletPreview(c *gin.Context) {
	total, err := strconv.ParseInt(c.Query("total_minor"), 10, 64)
	if err != nil {
		response.BadRequest(c, "total_minor must be an integer amount in minor units")
		return
	}
	applyWallet := c.DefaultQuery("apply_wallet", "true") != "false"

	preview, err := h.wallet.Preview(c.Request.Context(), middleware.GetUserID(c), total, applyWallet)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// GetIntent handles GET /intent.
func (h *Handler) GetIntent(c *gin.Context) {
	it, err := h.intents.Get(c.Request.Context(), middleware.GetSessionID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// PutPlanIntent handles PUT /intent/plan.
func (h *Handler) PutPlanIntent(c *gin.Context) {
	var plan intent.PlanIntent
	if err := c.ShouldBindJSON(&plan); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := h.intents.SetPlan(c.Request.Context(), middleware.GetSessionID(c), plan); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PutSourceRoute handles PUT /intent/source-route.
func (h *Handler) PutSourceRoute(c *gin.Context) {
	var body struct {
		Route string `json:"route"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Route == "" {
		response.BadRequest(c, "route is required")
		return
	}
	if err := h.intents.SetSourceRoute(c.Request.Context(), middleware.GetSessionID(c), body.Route); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PutPincode handles PUT /intent/pincode.
func (h *Handler) PutPincode(c *gin.Context) {
	var body struct {
		Pincode string `json:"pincode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Pincode == "" {
		response.BadRequest(c, "pincode is required")
		return
	}
	if err := h.intents.SetCheckedPincode(c.Request.Context(), middleware.GetSessionID(c), body.Pincode); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearIntent handles DELETE /intent.
func (h *Handler) ClearIntent(c *gin.Context) {
	if err := h.intents.Clear(c.Request.Context(), middleware.GetSessionID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GatewayScript handles GET /gateway/:provider/script, serving the cached
// checkout script asset for modal-flow gateways.
func (h *Handler) GatewayScript(c *gin.Context) {
	srv, err := h.gateways.ScriptServer(c.Param("provider"))
	if err != nil {
		response.NotFound(c, "gateway has no checkout script")
		return
	}

	script, err := srv.Script(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/javascript", script)
}

// flowError renders a settled attempt failure: the error envelope plus the
// outcome route the client should navigate to.
func (h *Handler) flowError(c *gin.Context, err error) {
	var flowErr *FlowError
	if !errors.As(err, &flowErr) {
		h.respondError(c, err)
		return
	}

	detail := apperrors.ErrorDetail{Code: "INTERNAL_ERROR", Message: "internal error"}
	var appErr *apperrors.AppError
	if errors.As(flowErr.Err, &appErr) {
		detail = apperrors.ErrorDetail{Code: appErr.Code, Message: appErr.Message}
	}
	c.JSON(apperrors.GetStatusCode(flowErr.Err), gin.H{
		"error":    detail,
		"redirect": flowErr.Redirect,
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	response.HandleErrorWithDefault(c, err, lifecycleMappings)
}
