package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mfi_wallet/internal/member"
	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// RegisterWalletRoutes wires the member-facing wallet endpoints. Every route
// addressing a wallet id checks that the caller owns it.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, members *member.Handler) {
	r.Get("/me", members.Me)
	r.Get("/wallet", h.Mine)

	wallets := r.Group("/wallets")
	wallets.Post("/", h.Create)
	wallets.Get("/:walletId", h.RequireOwner, h.Get)
	wallets.Get("/:walletId/balance", h.RequireOwner, h.Balance)
	wallets.Post("/:walletId/can-transact", h.RequireOwner, h.CanTransact)
	wallets.Post("/:walletId/transactions", h.RequireOwner, h.Transact)
	wallets.Get("/:walletId/transactions", h.RequireOwner, h.Transactions)
	wallets.Post("/:walletId/linked-accounts", h.RequireOwner, h.LinkAccount)
	wallets.Get("/:walletId/linked-accounts", h.RequireOwner, h.LinkedAccounts)
}

// RegisterOperatorRoutes wires back-office wallet administration: opening
// wallets for any member, unrestricted transactions, lifecycle and limits.
func RegisterOperatorRoutes(r fiber.Router, h *wallet.Handler) {
	wallets := r.Group("/wallets")
	wallets.Post("/", h.OperatorCreate)
	wallets.Get("/:walletId", h.Get)
	wallets.Post("/:walletId/transactions", h.OperatorTransact)
	wallets.Get("/:walletId/transactions", h.Transactions)
	wallets.Patch("/:walletId/status", h.UpdateStatus)
	wallets.Patch("/:walletId/limits", h.UpdateLimits)
}
