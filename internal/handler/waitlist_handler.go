package handler

import (
	"context"
	"net/http"
	"strings"

	"venue-ledger/internal/middleware"
	"venue-ledger/internal/model"
	"venue-ledger/internal/service"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type WaitlistHandler struct {
	service service.WaitlistService
}

func NewWaitlistHandler(service service.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{service: service}
}

func (h *WaitlistHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group(apiPrefix + "/waitlist", middleware.RequireOperator())
	{
		router.GET("", h.List)
		router.GET("stale", h.ListStale)
		router.GET("estimate", h.EstimateWait)
		router.GET(":entryId", h.Get)
		router.POST(":entryId/notify", h.Notify)
		router.POST(":entryId/seat", h.Seat)
		router.POST(":entryId/remove", h.Remove)
	}

	// 客人自行加入候位，不需要操作人員
	r.POST(apiPrefix+"/waitlist", h.Join)
}

func (h *WaitlistHandler) Join(c *gin.Context) {
	var req model.JoinWaitlistRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	ids, err := pathIDs(c, "venueId")
	if err != nil {
		handleLedgerError(c, err, "JoinWaitlist")
		return
	}

	entry, err := h.service.Join(c, ids[0], req)
	if err != nil {
		handleLedgerError(c, err, "JoinWaitlist")
		return
	}

	handleSuccess(c, entry, http.StatusCreated)
}

// List ?status=waiting,notified 或重複帶 status
func (h *WaitlistHandler) List(c *gin.Context) {
	ids, err := pathIDs(c, "venueId")
	if err != nil {
		handleLedgerError(c, err, "ListWaitlist")
		return
	}

	var statuses []model.WaitlistStatus
	for _, raw := range c.QueryArray("status") {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, model.WaitlistStatus(s))
			}
		}
	}

	entries, err := h.service.List(c, ids[0], statuses)
	if err != nil {
		handleLedgerError(c, err, "ListWaitlist")
		return
	}

	handleSuccess(c, entries, http.StatusOK)
}

func (h *WaitlistHandler) ListStale(c *gin.Context) {
	ids, err := pathIDs(c, "venueId")
	if err != nil {
		handleLedgerError(c, err, "ListStaleWaitlist")
		return
	}

	entries, err := h.service.ListStale(c, ids[0])
	if err != nil {
		handleLedgerError(c, err, "ListStaleWaitlist")
		return
	}

	handleSuccess(c, entries, http.StatusOK)
}

func (h *WaitlistHandler) EstimateWait(c *gin.Context) {
	ids, err := pathIDs(c, "venueId")
	if err != nil {
		handleLedgerError(c, err, "EstimateWait")
		return
	}

	var entryID *uuid.UUID
	if raw := c.Query("entry_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handleLedgerError(c, apperrors.NewValidationError("entry_id", "must be a uuid"), "EstimateWait")
			return
		}
		entryID = &id
	}

	estimate, err := h.service.EstimateWait(c, ids[0], entryID)
	if err != nil {
		handleLedgerError(c, err, "EstimateWait")
		return
	}

	handleSuccess(c, estimate, http.StatusOK)
}

func (h *WaitlistHandler) Get(c *gin.Context) {
	ids, err := pathIDs(c, "venueId", "entryId")
	if err != nil {
		handleLedgerError(c, err, "GetWaitlistEntry")
		return
	}

	entry, err := h.service.Get(c, ids[0], ids[1])
	if err != nil {
		handleLedgerError(c, err, "GetWaitlistEntry")
		return
	}

	handleSuccess(c, entry, http.StatusOK)
}

func (h *WaitlistHandler) Notify(c *gin.Context) {
	h.transition(c, "NotifyWaitlistEntry", h.service.Notify)
}

func (h *WaitlistHandler) Seat(c *gin.Context) {
	h.transition(c, "SeatWaitlistEntry", h.service.Seat)
}

func (h *WaitlistHandler) Remove(c *gin.Context) {
	h.transition(c, "RemoveWaitlistEntry", h.service.Remove)
}

type waitlistTransitionFunc func(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error)

func (h *WaitlistHandler) transition(c *gin.Context, operation string, fn waitlistTransitionFunc) {
	ids, err := pathIDs(c, "venueId", "entryId")
	if err != nil {
		handleLedgerError(c, err, operation)
		return
	}

	entry, err := fn(c, ids[0], ids[1], operatorID(c))
	if err != nil {
		handleLedgerError(c, err, operation)
		return
	}

	handleSuccess(c, entry, http.StatusOK)
}
