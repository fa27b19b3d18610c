package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"expertmarket/marketplace-backend/internal/auth"
	"expertmarket/marketplace-backend/internal/bids"
	"expertmarket/marketplace-backend/internal/config"
	"expertmarket/marketplace-backend/internal/contracts"
	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/internal/notifications/websocket"
	"expertmarket/marketplace-backend/internal/orchestrator"
	"expertmarket/marketplace-backend/internal/projects"
	"expertmarket/marketplace-backend/internal/reports/export"
	"expertmarket/marketplace-backend/pkg/money"
)

// Handler exposes the settlement engine over HTTP. It stays thin: parse,
// authorize, delegate to the orchestrator, translate errors.
type Handler struct {
	orc    *orchestrator.Orchestrator
	wsHub  *websocket.Manager
	escrow config.EscrowConfig
	logger *zap.Logger
}

func NewHandler(orc *orchestrator.Orchestrator, wsHub *websocket.Manager, escrowCfg config.EscrowConfig, logger *zap.Logger) *Handler {
	return &Handler{orc: orc, wsHub: wsHub, escrow: escrowCfg, logger: logger}
}

// RegisterRoutes mounts all endpoints under /api/v1 behind bearer auth.
func (h *Handler) RegisterRoutes(router *gin.Engine, jwtSecret string) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(jwtSecret))
	{
		api.POST("/projects", h.createProject)
		api.GET("/projects/:id", h.getProject)
		api.POST("/projects/:id/transition", h.transitionProject)
		api.GET("/projects/:id/transitions", h.listTransitions)
		api.POST("/projects/:id/invite", h.inviteExpert)
		api.POST("/projects/:id/invite/respond", h.respondToInvite)

		api.POST("/projects/:id/bids", h.submitBid)
		api.GET("/projects/:id/bids", h.listBids)
		api.POST("/projects/:id/bids/:bidId/accept", h.acceptBid)
		api.POST("/bids/:id/withdraw", h.withdrawBid)
		api.PATCH("/bids/:id", h.updateBid)

		api.POST("/contracts", h.createContract)
		api.GET("/contracts/:id", h.getContract)
		api.GET("/projects/:id/contracts", h.listContracts)
		api.POST("/contracts/:id/sign", h.signContract)
		api.PATCH("/contracts/:id/status", h.updateContractStatus)

		api.POST("/projects/:id/escrow", h.createEscrowAccount)
		api.GET("/projects/:id/escrow", h.getEscrowAccount)
		api.POST("/projects/:id/escrow/fund", h.fundEscrow)
		api.POST("/projects/:id/escrow/refund", h.refundEscrow)
		api.GET("/escrow/:accountId/transactions", h.listTransactions)
		api.GET("/escrow/:accountId/statement", h.exportStatement)
		api.POST("/escrow/:accountId/releases", h.requestRelease)
		api.GET("/escrow/:accountId/releases", h.listReleases)
		api.POST("/releases/:id/approve", h.approveRelease)

		api.GET("/ws", h.websocketConnect)
	}
}

// respondError maps domain error kinds onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var status int
	switch marketplace.KindOf(err) {
	case marketplace.KindNotFound:
		status = http.StatusNotFound
	case marketplace.KindForbidden:
		status = http.StatusForbidden
	case marketplace.KindInvalidTransition,
		marketplace.KindInvalidState,
		marketplace.KindDuplicateBid,
		marketplace.KindConflictRetryable:
		status = http.StatusConflict
	case marketplace.KindProjectNotBiddable,
		marketplace.KindBudgetOutOfRange,
		marketplace.KindExpertNotVerified,
		marketplace.KindNoActiveContract,
		marketplace.KindInsufficientEscrowBalance:
		status = http.StatusUnprocessableEntity
	case marketplace.KindGatewayFailure:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		h.logger.Error("unhandled error", zap.Error(err))
	}

	var mErr *marketplace.Error
	if errors.As(err, &mErr) {
		c.JSON(status, gin.H{"error": mErr.Message, "kind": string(mErr.Kind)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	id, ok := auth.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	}
	return id, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return uuid.Nil, false
	}
	return id, true
}

// Projects

func (h *Handler) createProject(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req projects.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.OwnerID = actorID
	project, err := h.orc.CreateProject(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *Handler) getProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := h.orc.GetProject(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) transitionProject(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ToState string `json:"to_state" binding:"required"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := h.orc.TransitionProject(c.Request.Context(), id, projects.State(req.ToState), &actorID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) listTransitions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	transitions, err := h.orc.ListTransitions(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": transitions})
}

func (h *Handler) inviteExpert(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ExpertID uuid.UUID `json:"expert_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := h.orc.InviteExpert(c.Request.Context(), id, req.ExpertID, actorID, h.escrow.InviteTTL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) respondToInvite(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := h.orc.RespondToInvite(c.Request.Context(), id, actorID, req.Accept)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// Bids

func (h *Handler) submitBid(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req bids.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ProjectID = projectID
	req.ExpertID = actorID
	bid, err := h.orc.SubmitBid(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bid)
}

func (h *Handler) listBids(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.orc.ListBids(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": list})
}

func (h *Handler) acceptBid(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	bidID, ok := pathID(c, "bidId")
	if !ok {
		return
	}
	result, err := h.orc.AcceptBid(c.Request.Context(), projectID, bidID, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) withdrawBid(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	bidID, ok := pathID(c, "id")
	if !ok {
		return
	}
	bid, err := h.orc.WithdrawBid(c.Request.Context(), bidID, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bid)
}

func (h *Handler) updateBid(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	bidID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req bids.UpdateBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bid, err := h.orc.UpdateBid(c.Request.Context(), bidID, actorID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bid)
}

// Contracts

func (h *Handler) createContract(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req contracts.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ClientID = actorID
	contract, err := h.orc.CreateContract(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

func (h *Handler) getContract(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	contract, err := h.orc.GetContract(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) listContracts(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.orc.ListContracts(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": list})
}

func (h *Handler) signContract(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Consent bool `json:"consent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	meta := contracts.SignatureMetadata{
		SignerID:  actorID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Consent:   req.Consent,
		ConsentAt: time.Now().UTC(),
	}
	contract, err := h.orc.SignContract(c.Request.Context(), id, actorID, meta)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) updateContractStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contract, err := h.orc.UpdateContractStatus(c.Request.Context(), id, contracts.Status(req.Status))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Escrow

func (h *Handler) createEscrowAccount(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		PlatformFeePercent *float64 `json:"platform_fee_percent"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	feePercent := h.escrow.DefaultPlatformFeePercent
	if req.PlatformFeePercent != nil {
		feePercent = *req.PlatformFeePercent
	}
	account, err := h.orc.CreateEscrowAccount(c.Request.Context(), projectID, actorID, feePercent)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *Handler) getEscrowAccount(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	account, err := h.orc.GetEscrowAccount(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) fundEscrow(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Amount money.Cents `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.orc.FundEscrow(c.Request.Context(), projectID, req.Amount, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) refundEscrow(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.orc.RefundEscrow(c.Request.Context(), projectID, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listTransactions(c *gin.Context) {
	accountID, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	txs, err := h.orc.ListEscrowTransactions(c.Request.Context(), accountID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// exportStatement streams the account ledger as an xlsx workbook.
func (h *Handler) exportStatement(c *gin.Context) {
	accountID, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	account, err := h.orc.GetEscrowAccountByID(ctx, accountID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	txs, err := h.orc.ListEscrowTransactions(ctx, accountID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=statement-%s.xlsx", accountID))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := export.LedgerStatement(c.Writer, account, txs); err != nil {
		h.logger.Error("statement export failed", zap.Error(err))
	}
}

func (h *Handler) requestRelease(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	var req struct {
		Amount      money.Cents `json:"amount" binding:"required"`
		MilestoneID *uuid.UUID  `json:"milestone_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	release, err := h.orc.RequestRelease(c.Request.Context(), accountID, req.Amount, req.MilestoneID, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, release)
}

func (h *Handler) listReleases(c *gin.Context) {
	accountID, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	releases, err := h.orc.ListReleases(c.Request.Context(), accountID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"releases": releases})
}

func (h *Handler) approveRelease(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	releaseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.orc.ApproveRelease(c.Request.Context(), releaseID, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// websocketConnect upgrades the request and registers the connection for
// realtime notification delivery.
func (h *Handler) websocketConnect(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	if _, err := h.wsHub.HandleConnection(c.Writer, c.Request, actorID.String()); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}
