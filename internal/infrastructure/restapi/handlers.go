package restapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/app/service"
	"portfolio_aggregator/internal/domain/entity"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Data          any                `json:"data,omitempty"`
	ServiceErrors []entity.SyncError `json:"service_errors,omitempty"`
	StatusMessage string             `json:"status_message"`
}

// PortfolioSyncer is the portfolio service as seen by the handlers.
type PortfolioSyncer interface {
	SyncAll(ctx context.Context) []entity.SyncError
	SyncAccount(ctx context.Context, accountID entity.AccountID) []entity.SyncError
	GetFailedAccounts() []entity.AccountID
}

// AccountAssetsSelector lists the non-fee assets of an account.
type AccountAssetsSelector interface {
	AccountAssets(assetID entity.AssetID, accountID entity.AccountID) ([]entity.AssetID, bool)
}

// Tracker is the FOX/ETH controller as seen by the handlers.
type Tracker interface {
	port.OpportunityTracker
	SetLpAccountID(id entity.AccountID)
	State() service.TrackerState
	RefreshAccounts(ctx context.Context)
}

// Claimer runs the rewards-claim flow.
type Claimer interface {
	EstimateClaim(ctx context.Context, req service.ClaimRequest) (service.ClaimEstimate, error)
	ConfirmClaim(ctx context.Context, req service.ClaimRequest) (string, error)
}

// Handlers serves the aggregator HTTP API.
type Handlers struct {
	portfolio     port.PortfolioReader
	syncer        PortfolioSyncer
	accountAssets AccountAssetsSelector
	opportunities port.OpportunityService
	tracker       Tracker
	claims        Claimer
	fiatRamp      port.FiatRampProvider
	logger        *zap.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(
	portfolio port.PortfolioReader,
	syncer PortfolioSyncer,
	accountAssets AccountAssetsSelector,
	opportunities port.OpportunityService,
	tracker Tracker,
	claims Claimer,
	fiatRamp port.FiatRampProvider,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		portfolio:     portfolio,
		syncer:        syncer,
		accountAssets: accountAssets,
		opportunities: opportunities,
		tracker:       tracker,
		claims:        claims,
		fiatRamp:      fiatRamp,
		logger:        logger.Named("restapi"),
	}
}

// GetPortfolio returns the normalized portfolio snapshot.
func (h *Handlers) GetPortfolio(c *gin.Context) {
	snapshot := h.portfolio.Snapshot()
	msg := "Portfolio retrieved successfully."
	if len(snapshot.Accounts.IDs) == 0 {
		msg = "No accounts in portfolio. Connect a wallet first."
	}
	c.JSON(http.StatusOK, APIResponse{Data: snapshot, StatusMessage: msg})
}

// GetAccountBalance returns the balance of ?assetId= held by :accountId.
func (h *Handlers) GetAccountBalance(c *gin.Context) {
	accountID, assetID, ok := h.accountAndAsset(c)
	if !ok {
		return
	}
	balance := h.portfolio.BalanceByAccountIDAndAssetID(accountID, assetID)
	c.JSON(http.StatusOK, APIResponse{
		Data:          gin.H{"accountId": accountID, "assetId": assetID, "balance": balance},
		StatusMessage: "Balance retrieved successfully.",
	})
}

// GetAccountAssets lists the assets of :accountId to show next to ?assetId=.
// An empty list means the account-tokens card has nothing to render.
func (h *Handlers) GetAccountAssets(c *gin.Context) {
	accountID, assetID, ok := h.accountAndAsset(c)
	if !ok {
		return
	}
	assetIDs, found := h.accountAssets.AccountAssets(assetID, accountID)
	if !found {
		c.JSON(http.StatusOK, APIResponse{Data: []entity.AssetID{}, StatusMessage: "No assets to display."})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: assetIDs, StatusMessage: "Account assets retrieved successfully."})
}

// SyncPortfolio reconciles every account, or only ?accountId= when given.
func (h *Handlers) SyncPortfolio(c *gin.Context) {
	ctx := c.Request.Context()

	var syncErrors []entity.SyncError
	if raw := c.Query("accountId"); raw != "" {
		accountID, err := entity.ParseAccountID(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		syncErrors = h.syncer.SyncAccount(ctx, accountID)
	} else {
		syncErrors = h.syncer.SyncAll(ctx)
	}

	msg := "Portfolio synced successfully."
	if len(syncErrors) > 0 {
		msg = "Portfolio synced. Some accounts or assets encountered errors."
	}
	c.JSON(http.StatusOK, APIResponse{ServiceErrors: syncErrors, StatusMessage: msg})
}

// GetFailedAccounts lists accounts whose last sync failed.
func (h *Handlers) GetFailedAccounts(c *gin.Context) {
	failed := h.syncer.GetFailedAccounts()
	if failed == nil {
		failed = []entity.AccountID{}
	}
	c.JSON(http.StatusOK, APIResponse{Data: failed, StatusMessage: "Failed accounts retrieved successfully."})
}

// GetOpportunities returns the known opportunity definitions.
func (h *Handlers) GetOpportunities(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Data: h.opportunities.Metadata(), StatusMessage: "Opportunities retrieved successfully."})
}

// GetAccountOpportunities returns the positions of :accountId. With
// ?refetch=true the positions are re-read from chain first.
func (h *Handlers) GetAccountOpportunities(c *gin.Context) {
	accountID, err := entity.ParseAccountID(c.Param("accountId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if c.Query("refetch") == "true" {
		opts := entity.FetchOptions{ForceRefetch: true}
		if err := h.opportunities.FetchAllOpportunitiesUserData(c.Request.Context(), accountID, opts); err != nil {
			h.logger.Warn("Opportunity refetch finished with errors", zap.String("accountId", string(accountID)), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, APIResponse{Data: h.opportunities.UserData(accountID), StatusMessage: "Opportunity positions retrieved successfully."})
}

// RefreshOpportunities reloads metadata and user data for the tracked accounts.
func (h *Handlers) RefreshOpportunities(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.opportunities.FetchAllOpportunitiesMetadata(ctx); err != nil {
		h.logger.Warn("Opportunity metadata refresh finished with errors", zap.Error(err))
	}
	h.tracker.RefreshAccounts(ctx)
	c.JSON(http.StatusOK, APIResponse{Data: h.opportunities.Metadata(), StatusMessage: "Opportunities refreshed."})
}

// GetTrackerState returns the FOX/ETH tracker snapshot.
func (h *Handlers) GetTrackerState(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Data: h.tracker.State(), StatusMessage: "Tracker state retrieved successfully."})
}

// TrackerAccountsRequest selects the accounts used for FOX/ETH flows.
type TrackerAccountsRequest struct {
	FarmingAccountID *string `json:"farmingAccountId"`
	LpAccountID      *string `json:"lpAccountId"`
}

// SetTrackerAccounts updates the farming and/or lp account. An empty string
// clears the selection.
func (h *Handlers) SetTrackerAccounts(c *gin.Context) {
	var req TrackerAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	farming, err := optionalAccountID(req.FarmingAccountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	lp, err := optionalAccountID(req.LpAccountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.FarmingAccountID != nil {
		h.tracker.SetFarmingAccountID(farming)
	}
	if req.LpAccountID != nil {
		h.tracker.SetLpAccountID(lp)
	}
	c.JSON(http.StatusOK, APIResponse{Data: h.tracker.State(), StatusMessage: "Tracker accounts updated."})
}

// TrackTxRequest reports a broadcast FOX/ETH transaction.
type TrackTxRequest struct {
	Kind            string `json:"kind" binding:"required,oneof=farming lp"`
	TxID            string `json:"txid" binding:"required"`
	ContractAddress string `json:"contractAddress" binding:"required"`
}

// TrackTx hands a farming or lp transaction to the tracker.
func (h *Handlers) TrackTx(c *gin.Context) {
	var req TrackTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	var err error
	switch req.Kind {
	case "farming":
		err = h.tracker.OnOngoingFarmingTxIDChange(req.TxID, req.ContractAddress)
	default:
		err = h.tracker.OnOngoingLpTxIDChange(req.TxID, req.ContractAddress)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, APIResponse{Data: h.tracker.State(), StatusMessage: "Transaction is being tracked."})
}

// EstimateClaim prepares and prices a rewards claim.
func (h *Handlers) EstimateClaim(c *gin.Context) {
	req, ok := h.bindClaim(c)
	if !ok {
		return
	}
	estimate, err := h.claims.EstimateClaim(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "Claim estimated."
	if !estimate.CanPayFee {
		msg = "Claim estimated. Fee asset balance does not cover the estimated fee."
	}
	c.JSON(http.StatusOK, APIResponse{Data: estimate, StatusMessage: msg})
}

// ConfirmClaim signs and broadcasts a rewards claim.
func (h *Handlers) ConfirmClaim(c *gin.Context) {
	req, ok := h.bindClaim(c)
	if !ok {
		return
	}
	txid, err := h.claims.ConfirmClaim(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, APIResponse{Data: gin.H{"txid": txid}, StatusMessage: "Claim broadcast."})
}

// GetFiatRampAssets lists the assets the fiat ramp can buy and sell.
func (h *Handlers) GetFiatRampAssets(c *gin.Context) {
	assets := h.fiatRamp.GetAssets(c.Request.Context())
	msg := "Fiat ramp assets retrieved successfully."
	if len(assets) == 0 {
		msg = "No fiat ramp assets available."
	}
	c.JSON(http.StatusOK, APIResponse{Data: assets, StatusMessage: msg})
}

// FiatRampURLRequest asks for a widget URL.
type FiatRampURLRequest struct {
	AssetID    string `json:"assetId" binding:"required"`
	Address    string `json:"address" binding:"required"`
	CurrentURL string `json:"currentUrl"`
}

// CreateFiatRampURL builds the fiat ramp widget URL for an asset and address.
func (h *Handlers) CreateFiatRampURL(c *gin.Context) {
	var req FiatRampURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	url, err := h.fiatRamp.CreateURL(entity.AssetID(req.AssetID), req.Address, req.CurrentURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: gin.H{"url": url}, StatusMessage: "Fiat ramp URL created."})
}

func (h *Handlers) bindClaim(c *gin.Context) (service.ClaimRequest, bool) {
	var req service.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return req, false
	}
	accountID, err := entity.ParseAccountID(string(req.AccountID))
	if err != nil {
		h.fail(c, err)
		return req, false
	}
	opportunityID, err := entity.ParseAssetID(string(req.OpportunityID))
	if err != nil {
		h.fail(c, err)
		return req, false
	}
	req.AccountID = accountID
	req.OpportunityID = opportunityID
	return req, true
}

func (h *Handlers) accountAndAsset(c *gin.Context) (entity.AccountID, entity.AssetID, bool) {
	accountID, err := entity.ParseAccountID(c.Param("accountId"))
	if err != nil {
		h.fail(c, err)
		return "", "", false
	}
	raw := c.Query("assetId")
	if raw == "" {
		h.badRequest(c, errors.New("assetId query parameter is required"))
		return "", "", false
	}
	assetID, err := entity.ParseAssetID(raw)
	if err != nil {
		h.fail(c, err)
		return "", "", false
	}
	return accountID, assetID, true
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, APIResponse{StatusMessage: err.Error()})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, APIResponse{StatusMessage: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrUnsupportedAsset),
		errors.Is(err, entity.ErrNoActiveAccount),
		errors.Is(err, entity.ErrInsufficientFunds),
		errors.Is(err, entity.ErrInvalidCAIP):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func optionalAccountID(raw *string) (entity.AccountID, error) {
	if raw == nil || *raw == "" {
		return "", nil
	}
	return entity.ParseAccountID(*raw)
}
