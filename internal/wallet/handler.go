package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/mfi_wallet/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{service: service, validate: validate}
}

type createRequest struct {
	OwnerID          string          `json:"owner_id" validate:"omitempty,uuid"`
	Currency         string          `json:"currency" validate:"omitempty,len=3,alpha"`
	DailyLimit       decimal.Decimal `json:"daily_limit"`
	TransactionLimit decimal.Decimal `json:"transaction_limit"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
}

type transactionRequest struct {
	Type        string          `json:"type" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
	Reference   string          `json:"reference" validate:"max=128"`
	Metadata    map[string]any  `json:"metadata"`
}

type canTransactRequest struct {
	Type   string          `json:"type" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended closed frozen"`
}

type limitsRequest struct {
	DailyLimit       decimal.Decimal `json:"daily_limit"`
	TransactionLimit decimal.Decimal `json:"transaction_limit"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
}

type linkAccountRequest struct {
	Type          string `json:"type" validate:"required,oneof=mobile_money bank card"`
	Provider      string `json:"provider" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required"`
	AccountName   string `json:"account_name"`
	IsDefault     bool   `json:"is_default"`
}

type walletResponse struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Status    Status          `json:"status"`
	Limits    Limits          `json:"limits"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toWalletResponse(w Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		Status:    w.Status,
		Limits:    w.Limits,
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// Create provisions a wallet for the caller. Members may not open wallets on
// behalf of someone else.
func (h *Handler) Create(c *fiber.Ctx) error {
	return h.create(c, false)
}

// OperatorCreate provisions a wallet for any owner.
func (h *Handler) OperatorCreate(c *fiber.Ctx) error {
	return h.create(c, true)
}

func (h *Handler) create(c *fiber.Ctx, anyOwner bool) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if !anyOwner {
		uid, _ := c.Locals("user_id").(string)
		if uid == "" {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		if req.OwnerID != "" && req.OwnerID != uid {
			return fiber.NewError(http.StatusForbidden, "cannot create a wallet for another member")
		}
		req.OwnerID = uid
	}
	if req.OwnerID == "" {
		return fiber.NewError(http.StatusBadRequest, "owner_id is required")
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:  req.OwnerID,
		Currency: req.Currency,
		Limits:   Limits{Daily: req.DailyLimit, Transaction: req.TransactionLimit, Monthly: req.MonthlyLimit},
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toWalletResponse(w))
}

// RequireOwner lets the request through only when the caller owns the wallet
// named by the walletId parameter. Foreign wallets answer 404.
func (h *Handler) RequireOwner(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return RespondError(c, err)
	}
	if w.OwnerID != uid {
		return RespondError(c, ErrWalletNotFound)
	}
	return c.Next()
}

// Get returns a wallet by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(toWalletResponse(w))
}

// Mine returns the caller's wallet.
func (h *Handler) Mine(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	w, err := h.service.FindByOwner(c.UserContext(), uid)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(toWalletResponse(w))
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.service.Balance(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(fiber.Map{
		"wallet_id": balance.WalletID,
		"balance":   balance.Amount,
		"currency":  balance.Currency,
		"timestamp": balance.AsOf,
	})
}

// CanTransact reports the limit policy decision without mutating anything.
func (h *Handler) CanTransact(c *fiber.Ctx) error {
	var req canTransactRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	decision, err := h.service.CanTransact(c.UserContext(), c.Params("walletId"), req.Amount, ledger.Type(req.Type))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(fiber.Map{
		"allowed": decision.Allowed,
		"reason":  decision.Reason,
	})
}

// Transact applies a policy-checked debit. Members cannot credit their own
// wallet here; money comes in through funding top-ups and transfers.
func (h *Handler) Transact(c *fiber.Ctx) error {
	return h.transact(c, false)
}

// OperatorTransact applies a policy-checked transaction of any type.
func (h *Handler) OperatorTransact(c *fiber.Ctx) error {
	return h.transact(c, true)
}

func (h *Handler) transact(c *fiber.Ctx, allowCredits bool) error {
	var req transactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	typ := ledger.Type(req.Type)
	if !allowCredits && typ.IsCredit() {
		return RespondError(c, &ValidationError{Field: "type", Message: "credits are only accepted through funding"})
	}
	entry, err := h.service.Transact(c.UserContext(), c.Params("walletId"), ledger.Request{
		Type:        typ,
		Amount:      req.Amount,
		Description: req.Description,
		Reference:   req.Reference,
		Metadata:    req.Metadata,
	})
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return c.Status(http.StatusOK).JSON(fiber.Map{"transaction": entry, "duplicate": true})
	}
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"transaction": entry, "duplicate": false})
}

// Transactions returns one page of the wallet ledger, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	page, err := h.service.GetTransactions(c.UserContext(), c.Params("walletId"),
		c.QueryInt("page", 1), c.QueryInt("page_size", ledger.DefaultPageSize))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(page)
}

// UpdateStatus changes the wallet lifecycle state.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.UpdateStatus(c.UserContext(), c.Params("walletId"), Status(req.Status))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(toWalletResponse(w))
}

// UpdateLimits replaces the limits present in the body.
func (h *Handler) UpdateLimits(c *fiber.Ctx) error {
	var req limitsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.UpdateLimits(c.UserContext(), c.Params("walletId"), Limits{
		Daily:       req.DailyLimit,
		Transaction: req.TransactionLimit,
		Monthly:     req.MonthlyLimit,
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(toWalletResponse(w))
}

// LinkAccount attaches an external account to the wallet.
func (h *Handler) LinkAccount(c *fiber.Ctx) error {
	var req linkAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acc, err := h.service.LinkAccount(c.UserContext(), c.Params("walletId"), LinkAccountInput{
		Type:          AccountType(req.Type),
		Provider:      req.Provider,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		IsDefault:     req.IsDefault,
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(acc)
}

// LinkedAccounts lists the wallet's external accounts.
func (h *Handler) LinkedAccounts(c *fiber.Ctx) error {
	accounts, err := h.service.LinkedAccounts(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return RespondError(c, err)
	}
	if accounts == nil {
		accounts = []LinkedAccount{}
	}
	return c.JSON(fiber.Map{"accounts": accounts})
}

// RespondError maps wallet errors onto HTTP responses. Policy denials carry
// their reason in the body.
func RespondError(c *fiber.Ctx, err error) error {
	if reason, ok := IsPolicyDenied(err); ok {
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "transaction denied",
			"reason": reason,
		})
	}
	return fiber.NewError(StatusCode(err), err.Error())
}

// StatusCode returns the HTTP status for a wallet error.
func StatusCode(err error) int {
	var (
		vErr *ValidationError
		pErr *PersistenceError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict), errors.Is(err, ErrWalletExists), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrWalletInactive):
		return http.StatusConflict
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrEntryNotFound):
		return http.StatusNotFound
	case errors.As(err, &pErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
