package payments

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// Handler exposes payment endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{service: service, validate: validate}
}

type transferRequest struct {
	FromWalletID string          `json:"from_wallet_id" validate:"required,uuid"`
	ToWalletID   string          `json:"to_wallet_id" validate:"required,uuid,nefield=FromWalletID"`
	Amount       decimal.Decimal `json:"amount"`
	Reference    string          `json:"reference" validate:"max=128"`
	Description  string          `json:"description" validate:"max=255"`
}

// P2P processes a wallet-to-wallet transfer.
func (h *Handler) P2P(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromWalletID:    req.FromWalletID,
		ToWalletID:      req.ToWalletID,
		Amount:          req.Amount,
		Reference:       req.Reference,
		Description:     req.Description,
		RequestorUserID: uid,
	})
	if err != nil {
		if errors.Is(err, ErrNotOwner) {
			return fiber.NewError(http.StatusForbidden, err.Error())
		}
		return wallet.RespondError(c, err)
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"reference":       res.Reference,
		"debit_entry_id":  res.DebitEntryID,
		"credit_entry_id": res.CreditEntryID,
		"from_balance":    res.FromBalance,
		"to_balance":      res.ToBalance,
		"completed_at":    res.CompletedAt,
		"duplicate":       res.Duplicate,
	})
}
