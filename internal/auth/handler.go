package auth

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mfi_wallet/internal/member"
	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	members  *member.Service
	svc      *Service
	wallets  *wallet.Service
	validate *validator.Validate
}

func NewHandler(members *member.Service, svc *Service, wallets *wallet.Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{members: members, svc: svc, wallets: wallets, validate: validate}
}

type loginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	PIN      string `json:"pin" validate:"required"`
	DeviceID string `json:"device_id"`
}

type loginResponse struct {
	MemberID     string `json:"member_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
	Tier         string `json:"tier"`
	WalletID     string `json:"wallet_id,omitempty"`
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	m, err := h.members.Authenticate(c.UserContext(), member.Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	pair, err := h.svc.Login(m)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	var wid string
	if h.wallets != nil {
		if w, err := h.wallets.FindByOwner(c.UserContext(), m.ID); err == nil {
			wid = w.ID
		}
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		MemberID:     m.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenVersion: m.TokenVersion,
		Tier:         m.Tier,
		WalletID:     wid,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}

// Logout invalidates existing tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.StructCtx(c.UserContext(), req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
