package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mfi_wallet/internal/funding"
)

// RegisterFundingRoutes wires top-up and withdrawal endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	group := r.Group("/funding")
	group.Post("/top-up", h.TopUp)
	group.Post("/withdraw", h.Withdraw)
}
