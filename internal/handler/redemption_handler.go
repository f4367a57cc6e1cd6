package handler

import (
	"net/http"

	"venue-ledger/internal/middleware"
	"venue-ledger/internal/model"
	"venue-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type RedemptionHandler struct {
	service service.RedemptionService
}

func NewRedemptionHandler(service service.RedemptionService) *RedemptionHandler {
	return &RedemptionHandler{service: service}
}

func (h *RedemptionHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group(apiPrefix + "/purchases/:purchaseId", middleware.RequireOperator())
	{
		router.POST("redeem", h.RedeemItems)
		router.GET("balance", h.GetPurchaseBalance)
		router.GET("redemptions", h.ListRedemptions)
		router.GET("guests", h.ListPackageGuests)
		router.POST("guests", h.AddPackageGuest)
		router.POST("guests/primary", h.EnsurePrimaryPackageGuest)
	}
}

func (h *RedemptionHandler) RedeemItems(c *gin.Context) {
	var req model.RedeemItemsRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	ids, err := pathIDs(c, "venueId", "purchaseId")
	if err != nil {
		handleLedgerError(c, err, "RedeemItems")
		return
	}

	result, err := h.service.RedeemItems(c, model.RedeemRequest{
		VenueID:        ids[0],
		OperatorID:     operatorID(c),
		PurchaseID:     ids[1],
		PackageGuestID: req.PackageGuestID,
		Lines:          req.Lines,
	})
	if err != nil {
		handleLedgerError(c, err, "RedeemItems")
		return
	}

	handleSuccess(c, result, http.StatusOK)
}

func (h *RedemptionHandler) GetPurchaseBalance(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "purchaseId")
	if err != nil {
		handleLedgerError(c, err, "GetPurchaseBalance")
		return
	}

	balance, err := h.service.GetPurchaseBalance(c, ids[0], ids[1])
	if err != nil {
		handleLedgerError(c, err, "GetPurchaseBalance")
		return
	}

	handleSuccess(c, balance, http.StatusOK)
}

func (h *RedemptionHandler) ListRedemptions(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "purchaseId")
	if err != nil {
		handleLedgerError(c, err, "ListRedemptions")
		return
	}

	redemptions, err := h.service.ListRedemptions(c, ids[0], ids[1])
	if err != nil {
		handleLedgerError(c, err, "ListRedemptions")
		return
	}

	handleSuccess(c, redemptions, http.StatusOK)
}

func (h *RedemptionHandler) ListPackageGuests(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "purchaseId")
	if err != nil {
		handleLedgerError(c, err, "ListPackageGuests")
		return
	}

	guests, err := h.service.ListPackageGuests(c, ids[0], ids[1])
	if err != nil {
		handleLedgerError(c, err, "ListPackageGuests")
		return
	}

	handleSuccess(c, guests, http.StatusOK)
}

func (h *RedemptionHandler) AddPackageGuest(c *gin.Context) {
	var identity model.GuestIdentity
	if !bindOptionalJson(c, &identity) {
		return
	}

	ids, err := pathIDs(c, "venueId", "purchaseId")
	if err != nil {
		handleLedgerError(c, err, "AddPackageGuest")
		return
	}

	guest, err := h.service.AddPackageGuest(c, ids[0], ids[1], identity)
	if err != nil {
		handleLedgerError(c, err, "AddPackageGuest")
		return
	}

	handleSuccess(c, guest, http.StatusCreated)
}

func (h *RedemptionHandler) EnsurePrimaryPackageGuest(c *gin.Context) {
	var identity model.GuestIdentity
	if !bindOptionalJson(c, &identity) {
		return
	}

	ids, err := pathIDs(c, "venueId", "purchaseId")
	if err != nil {
		handleLedgerError(c, err, "EnsurePrimaryPackageGuest")
		return
	}

	guest, err := h.service.EnsurePrimaryPackageGuest(c, ids[0], ids[1], identity)
	if err != nil {
		handleLedgerError(c, err, "EnsurePrimaryPackageGuest")
		return
	}

	handleSuccess(c, guest, http.StatusOK)
}
