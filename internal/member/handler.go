package member

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// WalletProvisioner opens the wallet of a newly registered member.
type WalletProvisioner interface {
	EnsureForOwner(ctx context.Context, ownerID string) (wallet.Wallet, error)
}

// Handler exposes member endpoints.
type Handler struct {
	service  *Service
	wallets  WalletProvisioner
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs a member HTTP handler.
func NewHandler(service *Service, wallets WalletProvisioner, validate *validator.Validate, logger *slog.Logger) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, wallets: wallets, validate: validate, logger: logger}
}

type registerRequest struct {
	Phone    string `json:"phone" validate:"required,e164"`
	PIN      string `json:"pin" validate:"required,numeric,min=4,max=8"`
	DeviceID string `json:"device_id" validate:"max=128"`
	FullName string `json:"full_name" validate:"max=120"`
}

type memberResponse struct {
	MemberID     string `json:"member_id"`
	Phone        string `json:"phone"`
	FullName     string `json:"full_name,omitempty"`
	Tier         string `json:"tier"`
	DeviceID     string `json:"device_id,omitempty"`
	TokenVersion int    `json:"token_version"`
	WalletID     string `json:"wallet_id,omitempty"`
}

// Register onboards a member and opens their wallet.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	m, err := h.service.Register(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID, FullName: req.FullName})
	if errors.Is(err, ErrMemberExists) {
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var walletID string
	if h.wallets != nil {
		w, err := h.wallets.EnsureForOwner(c.UserContext(), m.ID)
		if err != nil {
			// the wallet is created again on first use
			h.logger.Error("wallet provisioning failed", slog.String("member_id", m.ID), slog.Any("error", err))
		}
		walletID = w.ID
	}
	h.logger.Info("member registered",
		slog.String("member_id", m.ID),
		slog.String("wallet_id", walletID),
	)
	return c.Status(http.StatusCreated).JSON(toResponse(m, walletID))
}

// Me returns the authenticated member's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	m, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	var walletID string
	if h.wallets != nil {
		if w, err := h.wallets.EnsureForOwner(c.UserContext(), m.ID); err == nil {
			walletID = w.ID
		}
	}
	return c.JSON(toResponse(m, walletID))
}

func toResponse(m Member, walletID string) memberResponse {
	return memberResponse{
		MemberID:     m.ID,
		Phone:        m.Phone,
		FullName:     m.FullName,
		Tier:         m.Tier,
		DeviceID:     m.DeviceID,
		TokenVersion: m.TokenVersion,
		WalletID:     walletID,
	}
}
