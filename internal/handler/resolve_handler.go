package handler

import (
	"net/http"

	"venue-ledger/internal/model"
	"venue-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type ResolveHandler struct {
	resolver service.CodeResolver
}

func NewResolveHandler(resolver service.CodeResolver) *ResolveHandler {
	return &ResolveHandler{resolver: resolver}
}

func (h *ResolveHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group(apiPrefix)
	{
		router.POST("resolve", h.Resolve)
	}
}

func (h *ResolveHandler) Resolve(c *gin.Context) {
	var req model.ResolveRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	ids, err := pathIDs(c, "venueId")
	if err != nil {
		handleLedgerError(c, err, "Resolve")
		return
	}

	ref, err := h.resolver.Resolve(c, ids[0], req.Code)
	if err != nil {
		handleLedgerError(c, err, "Resolve")
		return
	}

	handleSuccess(c, ref, http.StatusOK)
}
