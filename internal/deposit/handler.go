package deposit

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/pixa-pay/pixa_pay/internal/gateway"
	"github.com/pixa-pay/pixa_pay/internal/identity"
	"github.com/pixa-pay/pixa_pay/internal/ledger"
)

// Handler exposes HTTP endpoints for balances, deposits and the provider
// webhook.
type Handler struct {
	service *Service
	users   identity.Repository
}

// NewHandler constructs a deposit handler. The identity repository supplies
// customer details for provider charges.
func NewHandler(service *Service, users identity.Repository) *Handler {
	return &Handler{service: service, users: users}
}

// DepositRequest is the body for both mock and PIX deposits.
type DepositRequest struct {
	AmountMinorUnits int64 `json:"amount_minor_units"`
}

// Balance returns the caller's current balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	balance, err := h.service.Balance(c.UserContext(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, "balance lookup failed")
	}
	return c.JSON(fiber.Map{
		"balance_minor_units": balance,
		"balance_display":     fmt.Sprintf("%d.%02d", balance/100, balance%100),
	})
}

// Transactions lists the caller's recent transactions.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	limit := c.QueryInt("limit", 50)
	txs, err := h.service.History(c.UserContext(), accountID, limit)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, "transaction lookup failed")
	}

	out := make([]fiber.Map, 0, len(txs))
	for _, tx := range txs {
		out = append(out, fiber.Map{
			"id":                 tx.ID,
			"kind":               tx.Kind,
			"status":             tx.Status,
			"amount_minor_units": tx.AmountMinorUnits,
			"provider_reference": tx.ProviderReference,
			"description":        tx.Description,
			"created_at":         tx.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"transactions": out})
}

// DepositMock credits the caller's balance immediately. Local testing only.
func (h *Handler) DepositMock(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	tx, balance, err := h.service.DirectCredit(c.UserContext(), accountID, req.AmountMinorUnits, "Deposit (mock)")
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, "amount_minor_units must be positive")
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, "deposit failed")
		}
	}

	return c.JSON(fiber.Map{
		"transaction_id":      tx.ID,
		"status":              tx.Status,
		"balance_minor_units": balance,
	})
}

// DepositPix opens a provider charge and records a pending transaction. The
// credit happens later via the webhook when the provider confirms payment.
func (h *Handler) DepositPix(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := h.users.FindByID(c.UserContext(), accountID)
	if err != nil {
		return fiber.NewError(http.StatusNotFound, "account not found")
	}

	result, err := h.service.Initiate(c.UserContext(), InitiateInput{
		AccountID:        accountID,
		AmountMinorUnits: req.AmountMinorUnits,
		Customer: gateway.Customer{
			Name:     user.Name,
			Email:    user.Email,
			Document: user.Document,
			Phone:    user.Phone,
		},
	})
	if err != nil {
		var gwErr *gateway.Error
		switch {
		case errors.Is(err, ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		case errors.As(err, &gwErr):
			if gwErr.HTTPStatus > 0 {
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Status(gwErr.HTTPStatus).Send(gwErr.Body)
			}
			return fiber.NewError(http.StatusBadGateway, "payment provider unavailable")
		default:
			return fiber.NewError(http.StatusInternalServerError, "deposit could not be recorded")
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id":     result.TransactionID,
		"provider_reference": result.ProviderReference,
		"status":             result.Status,
		"provider_payload":   result.ProviderPayload,
	})
}

// webhookRequest tolerates the provider's loose payload: the charge id may be
// a number or a string, and customer.externalRef is optional.
type webhookRequest struct {
	ID            any    `json:"id"`
	TransactionID any    `json:"transactionId"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Customer      *struct {
		ExternalRef string `json:"externalRef"`
	} `json:"customer"`
}

// Webhook receives provider notifications. Every classified outcome is
// acknowledged with 200 so the provider stops redelivering; only a store
// failure returns 5xx, which makes the provider retry against an idempotent
// engine.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Status == "" {
		return fiber.NewError(http.StatusBadRequest, "status is required")
	}

	n := Notification{
		ProviderReference: stringifyID(req.ID),
		Status:            req.Status,
		AmountMinorUnits:  req.Amount,
	}
	if n.ProviderReference == "" {
		n.ProviderReference = stringifyID(req.TransactionID)
	}
	if req.Customer != nil {
		n.ExternalReference = req.Customer.ExternalRef
	}

	outcome, err := h.service.ApplyNotification(c.UserContext(), n)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "notification could not be applied")
	}

	return c.JSON(fiber.Map{"ok": true, "outcome": outcome})
}

func stringifyID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return ""
	}
}
