package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/pixa-pay/pixa_pay/internal/deposit"
	"github.com/pixa-pay/pixa_pay/internal/identity"
)

// Handler exposes registration and session endpoints.
type Handler struct {
	identity     *identity.Service
	tokens       *Service
	deposits     *deposit.Service
	welcomeBonus int64
	logger       *slog.Logger
}

// NewHandler wires the auth handler. deposits provisions the ledger account
// and grants the welcome bonus at registration.
func NewHandler(identitySvc *identity.Service, tokens *Service, deposits *deposit.Service, welcomeBonus int64, logger *slog.Logger) *Handler {
	return &Handler{
		identity:     identitySvc,
		tokens:       tokens,
		deposits:     deposits,
		welcomeBonus: welcomeBonus,
		logger:       logger,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates a user, provisions their ledger account and grants the
// welcome bonus.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := h.identity.Register(c.UserContext(), identity.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Document: req.Document,
		Phone:    req.Phone,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return fiber.NewError(http.StatusConflict, "email already registered")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	account, err := h.deposits.Provision(c.UserContext(), user.ID)
	if err != nil {
		h.logger.Error("provision account", "user_id", user.ID, "error", err)
		return fiber.NewError(http.StatusInternalServerError, "account could not be provisioned")
	}

	balance := account.BalanceMinorUnits
	if h.welcomeBonus > 0 {
		if _, newBalance, err := h.deposits.GrantBonus(c.UserContext(), user.ID, h.welcomeBonus, "Welcome bonus"); err != nil {
			h.logger.Error("grant welcome bonus", "user_id", user.ID, "error", err)
		} else {
			balance = newBalance
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user": fiber.Map{
			"id":         user.ID,
			"name":       user.Name,
			"email":      user.Email,
			"created_at": user.CreatedAt,
		},
		"balance_minor_units": balance,
	})
}

// Login validates credentials and issues tokens.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := h.identity.Authenticate(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}

	pair, err := h.tokens.Login(user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "token issuance failed")
	}

	return c.JSON(fiber.Map{
		"tokens": pair,
		"user":   fiber.Map{"id": user.ID, "name": user.Name, "email": user.Email},
	})
}

// Refresh exchanges a refresh token for a new access token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	access, expiresIn, err := h.tokens.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}

	return c.JSON(fiber.Map{"access_token": access, "expires_in": expiresIn})
}

// Logout invalidates all outstanding tokens for the caller.
func (h *Handler) Logout(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "not authenticated")
	}
	if err := h.tokens.Logout(c.UserContext(), userID); err != nil {
		return fiber.NewError(http.StatusInternalServerError, "logout failed")
	}
	return c.JSON(fiber.Map{"ok": true})
}
