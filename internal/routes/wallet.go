package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pixa-pay/pixa_pay/internal/deposit"
)

// RegisterWalletRoutes wires balance and deposit endpoints. The idempotency
// middleware guards the unsafe deposit routes when Redis is available; the
// webhook deliberately stays outside it, reconciliation is idempotent by
// construction and must re-run on provider retries.
func RegisterWalletRoutes(r fiber.Router, h *deposit.Handler, idem fiber.Handler) {
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)

	if idem != nil {
		r.Post("/deposits/mock", idem, h.DepositMock)
		r.Post("/deposits/pix", idem, h.DepositPix)
		return
	}
	r.Post("/deposits/mock", h.DepositMock)
	r.Post("/deposits/pix", h.DepositPix)
}
