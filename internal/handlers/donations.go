package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/payment"
	"github.com/adeelraza/floodcoord/internal/services"
	appErrors "github.com/adeelraza/floodcoord/pkg/errors"
	"github.com/adeelraza/floodcoord/pkg/response"
)

// stripeSignatureHeader carries the webhook payload signature.
const stripeSignatureHeader = "Stripe-Signature"

type DonationHandler struct {
	donations *services.DonationService
	provider  payment.Provider
}

func NewDonationHandler(donations *services.DonationService, provider payment.Provider) *DonationHandler {
	return &DonationHandler{donations: donations, provider: provider}
}

type createDonationRequest struct {
	DonorName          string `json:"donor_name" validate:"required,max=128"`
	DonorAccountNumber string `json:"donor_account_number" validate:"required,max=64"`
	Email              string `json:"email" validate:"required,email"`
	Type               string `json:"type" validate:"required"`

	Amount      *int64  `json:"amount" validate:"omitempty,min=1"`
	Quantity    *int    `json:"quantity" validate:"omitempty,min=1"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IsRecurring bool    `json:"is_recurring"`
}

// POST /api/donations (public)
func (h *DonationHandler) Create(c *gin.Context) {
	var req createDonationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	switch models.DonationType(req.Type) {
	case models.DonationCash:
		if req.Amount == nil {
			response.Error(c, appErrors.NewBadRequest("amount is required for cash donations"))
			return
		}
		result, err := h.donations.CreateCash(requestContext(c), services.CashDonationInput{
			DonorName:          req.DonorName,
			DonorAccountNumber: req.DonorAccountNumber,
			Email:              req.Email,
			Amount:             *req.Amount,
			IsRecurring:        req.IsRecurring,
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusCreated, result)

	case models.DonationOtherSupplies:
		description := ""
		if req.Description != nil {
			description = *req.Description
		}
		donation, err := h.donations.CreateGoods(requestContext(c), services.GoodsDonationInput{
			DonorName:          req.DonorName,
			DonorAccountNumber: req.DonorAccountNumber,
			Email:              req.Email,
			Quantity:           req.Quantity,
			Description:        description,
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusCreated, donation)

	default:
		response.Error(c, appErrors.NewBadRequest("unknown donation type"))
	}
}

// POST /api/donations/webhook (public, signature-verified)
func (h *DonationHandler) Webhook(c *gin.Context) {
	if h.provider == nil {
		response.Error(c, appErrors.ErrExternalService.WithMessage("Payments are not configured"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("unreadable payload"))
		return
	}

	event, err := h.provider.VerifyWebhook(payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		response.Error(c, appErrors.ErrBadRequest.WithMessage("Invalid webhook signature").WithInternal(err))
		return
	}

	if err := h.donations.ApplyPaymentEvent(requestContext(c), event); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true})
}

// GET /api/donations/by-account/:accountNumber (public self-service lookup)
func (h *DonationHandler) ListByAccount(c *gin.Context) {
	page := paginationFrom(c)

	donations, total, err := h.donations.ListByAccount(requestContext(c), c.Param("accountNumber"), page)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, donations, metaFor(page, total))
}

// GET /api/donations
func (h *DonationHandler) List(c *gin.Context) {
	page := paginationFrom(c)
	filter := services.DonationFilter{
		Status: models.DonationStatus(c.Query("status")),
		Type:   models.DonationType(c.Query("type")),
	}

	donations, total, err := h.donations.List(requestContext(c), filter, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, donations, metaFor(page, total))
}

// GET /api/donations/statistics
func (h *DonationHandler) Statistics(c *gin.Context) {
	stats, err := h.donations.GetStatistics(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// POST /api/donations/:id/distribute
func (h *DonationHandler) Distribute(c *gin.Context) {
	donation, err := h.donations.MarkDistributed(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, donation)
}
