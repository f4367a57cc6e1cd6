package handler

import (
	"net/http"

	"venue-ledger/internal/middleware"
	"venue-ledger/internal/model"
	"venue-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type AdmissionHandler struct {
	service service.AdmissionService
}

func NewAdmissionHandler(service service.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{service: service}
}

func (h *AdmissionHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group(apiPrefix, middleware.RequireOperator())
	{
		// guest 層級
		router.POST("guests/:guestId/check-in", h.CheckIn)
		router.POST("guests/:guestId/no-show", h.MarkNoShow)
		router.POST("guests/:guestId/undo-no-show", h.UndoNoShow)
		router.DELETE("guests/:guestId", h.RemoveGuest)

		router.GET("bookings/:bookingId/guests", h.ListGuests)
		router.POST("bookings/:bookingId/guests", h.AddGuest)
		router.POST("bookings/:bookingId/guests/primary", h.EnsurePrimaryGuest)
		router.POST("bookings/:bookingId/no-show-remaining", h.BulkMarkNoShow)

		// 訂位層級
		router.GET("bookings/:bookingId/admission", h.GetAdmissionSummary)
		router.POST("bookings/:bookingId/check-in", h.CheckInBooking)
		router.POST("bookings/:bookingId/no-show", h.MarkBookingNoShow)
		router.POST("bookings/:bookingId/undo-no-show", h.UndoBookingNoShow)
	}
}

func (h *AdmissionHandler) CheckIn(c *gin.Context) {
	var req model.CheckInRequest
	if !bindOptionalJson(c, &req) {
		return
	}

	ids, err := pathIDs(c, "venueId", "guestId")
	if err != nil {
		handleLedgerError(c, err, "CheckIn")
		return
	}

	result, err := h.service.CheckIn(c, ids[0], ids[1], operatorID(c), req.Spend)
	if err != nil {
		handleLedgerError(c, err, "CheckIn")
		return
	}

	handleSuccess(c, result, http.StatusOK)
}

func (h *AdmissionHandler) MarkNoShow(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "guestId")
	if err != nil {
		handleLedgerError(c, err, "MarkNoShow")
		return
	}

	guest, err := h.service.MarkNoShow(c, ids[0], ids[1], operatorID(c))
	if err != nil {
		handleLedgerError(c, err, "MarkNoShow")
		return
	}

	handleSuccess(c, guest, http.StatusOK)
}

func (h *AdmissionHandler) UndoNoShow(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "guestId")
	if err != nil {
		handleLedgerError(c, err, "UndoNoShow")
		return
	}

	guest, err := h.service.UndoNoShow(c, ids[0], ids[1], operatorID(c))
	if err != nil {
		handleLedgerError(c, err, "UndoNoShow")
		return
	}

	handleSuccess(c, guest, http.StatusOK)
}

func (h *AdmissionHandler) RemoveGuest(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "guestId")
	if err != nil {
		handleLedgerError(c, err, "RemoveGuest")
		return
	}

	if err := h.service.RemoveGuest(c, ids[0], ids[1]); err != nil {
		handleLedgerError(c, err, "RemoveGuest")
		return
	}

	handleSuccess(c, nil, http.StatusNoContent)
}

func (h *AdmissionHandler) ListGuests(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "bookingId")
	if err != nil {
		handleLedgerError(c, err, "ListGuests")
		return
	}

	guests, err := h.service.ListGuests(c, ids[0], ids[1])
	if err != nil {
		handleLedgerError(c, err, "ListGuests")
		return
	}

	handleSuccess(c, guests, http.StatusOK)
}

func (h *AdmissionHandler) AddGuest(c *gin.Context) {
	var identity model.GuestIdentity
	if !bindOptionalJson(c, &identity) {
		return
	}

	ids, err := pathIDs(c, "venueId", "bookingId")
	if err != nil {
		handleLedgerError(c, err, "AddGuest")
		return
	}

	guest, err := h.service.AddGuest(c, ids[0], ids[1], identity)
	if err != nil {
		handleLedgerError(c, err, "AddGuest")
		return
	}

	handleSuccess(c, guest, http.StatusCreated)
}

func (h *AdmissionHandler) EnsurePrimaryGuest(c *gin.Context) {
	var identity model.GuestIdentity
	if !bindOptionalJson(c, &identity) {
		return
	}

	ids, err := pathIDs(c, "venueId", "bookingId")
	if err != nil {
		handleLedgerError(c, err, "EnsurePrimaryGuest")
		return
	}

	guest, err := h.service.EnsurePrimaryGuest(c, ids[0], ids[1], identity)
	if err != nil {
		handleLedgerError(c, err, "EnsurePrimaryGuest")
		return
	}

	handleSuccess(c, guest, http.StatusOK)
}

func (h *AdmissionHandler) BulkMarkNoShow(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "bookingId")
	if err != nil {
		handleLedgerError(c, err, "BulkMarkNoShow")
		return
	}

	result, err := h.service.BulkMarkNoShow(c, ids[0], ids[1], operatorID(c))
	if err != nil {
		handleLedgerError(c, err, "BulkMarkNoShow")
		return
	}

	handleSuccess(c, result, http.StatusOK)
}

func (h *AdmissionHandler) GetAdmissionSummary(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "bookingId")
	if err != nil {
		handleLedgerError(c, err, "GetAdmissionSummary")
		return
	}

	summary, err := h.service.GetAdmissionSummary(c, ids[0], ids[1])
	if err != nil {
		handleLedgerError(c, err, "GetAdmissionSummary")
		return
	}

	handleSuccess(c, summary, http.StatusOK)
}

func (h *AdmissionHandler) CheckInBooking(c *gin.Context) {
	var req model.CheckInRequest
	if !bindOptionalJson(c, &req) {
		return
	}

	ids, err := pathIDs(c, "venueId", "bookingId")
	if err != nil {
		handleLedgerError(c, err, "CheckInBooking")
		return
	}

	result, err := h.service.CheckInBooking(c, ids[0], ids[1], operatorID(c), req.Spend)
	if err != nil {
		handleLedgerError(c, err, "CheckInBooking")
		return
	}

	handleSuccess(c, result, http.StatusOK)
}

func (h *AdmissionHandler) MarkBookingNoShow(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "bookingId")
	if err != nil {
		handleLedgerError(c, err, "MarkBookingNoShow")
		return
	}

	booking, err := h.service.MarkBookingNoShow(c, ids[0], ids[1], operatorID(c))
	if err != nil {
		handleLedgerError(c, err, "MarkBookingNoShow")
		return
	}

	handleSuccess(c, booking, http.StatusOK)
}

func (h *AdmissionHandler) UndoBookingNoShow(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "bookingId")
	if err != nil {
		handleLedgerError(c, err, "UndoBookingNoShow")
		return
	}

	booking, err := h.service.UndoBookingNoShow(c, ids[0], ids[1], operatorID(c))
	if err != nil {
		handleLedgerError(c, err, "UndoBookingNoShow")
		return
	}

	handleSuccess(c, booking, http.StatusOK)
}
