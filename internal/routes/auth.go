package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mfi_wallet/internal/auth"
	"github.com/congo-pay/mfi_wallet/internal/member"
)

// RegisterMemberRoutes wires public onboarding.
func RegisterMemberRoutes(r fiber.Router, h *member.Handler) {
	r.Post("/members/register", h.Register)
}

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", h.Logout)
}
