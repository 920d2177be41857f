package funding

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// Handler exposes HTTP endpoints for top-up and withdrawal flows.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{service: service, validate: validate}
}

// TopUp credits a wallet from one of its linked accounts.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	return h.handle(c, h.service.TopUp)
}

// Withdraw pays wallet funds out to one of its linked accounts.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.handle(c, h.service.Withdraw)
}

func (h *Handler) handle(c *fiber.Ctx, op func(context.Context, Input) (Result, error)) error {
	var req FundingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := op(c.UserContext(), Input{
		WalletID:        req.WalletID,
		Rail:            wallet.AccountType(req.Rail),
		LinkedAccountID: req.LinkedAccountID,
		Amount:          req.Amount,
		Reference:       req.Reference,
		RequestorUserID: uid,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrRailDeclined):
			return fiber.NewError(http.StatusBadGateway, err.Error())
		default:
			return wallet.RespondError(c, err)
		}
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	return c.Status(status).JSON(toResponse(result))
}

func toResponse(result Result) FundingResponse {
	return FundingResponse{
		TransactionID:   result.Entry.TransactionID,
		Reference:       result.Entry.Reference,
		Status:          string(result.Entry.Status),
		WalletBalance:   result.Entry.BalanceAfter,
		LinkedAccountID: result.Account.ID,
		RailReference:   result.RailReference,
		CompletedAt:     result.Entry.CreatedAt,
		Duplicate:       result.Duplicate,
	}
}
