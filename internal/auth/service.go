package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pixa-pay/pixa_pay/internal/config"
	"github.com/pixa-pay/pixa_pay/internal/identity"
)

// Service issues and verifies access and refresh tokens.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
}

// NewService builds the token service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo}
}

// Token kinds carried in the typ claim. Access and refresh tokens share the
// claim shape, so the kind must be explicit or a long-lived refresh token
// could pass access checks whenever both secrets are configured equal.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenPair carries the tokens returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims is the verified content of an access or refresh token.
type Claims struct {
	UserID       string
	TokenVersion int
}

// Login issues an access/refresh token pair for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user, s.cfg.JWTSecret, tokenTypeAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, s.cfg.RefreshSecret, tokenTypeRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// VerifyAccess parses an access token and checks it against the stored token
// version so logout invalidates older tokens.
func (s *Service) VerifyAccess(ctx context.Context, token string) (identity.User, error) {
	claims, err := parse(token, s.cfg.JWTSecret, tokenTypeAccess)
	if err != nil {
		return identity.User{}, err
	}
	user, err := s.idRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return identity.User{}, errors.New("user not found")
	}
	if user.TokenVersion != claims.TokenVersion {
		return identity.User{}, errors.New("token invalidated")
	}
	return user, nil
}

// Refresh verifies the refresh token and issues a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := parse(refreshToken, s.cfg.RefreshSecret, tokenTypeRefresh)
	if err != nil {
		return "", 0, errors.New("invalid refresh token")
	}
	user, err := s.idRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return "", 0, errors.New("user not found")
	}
	if user.TokenVersion != claims.TokenVersion {
		return "", 0, errors.New("token version invalidated")
	}
	access, err := s.sign(user, s.cfg.JWTSecret, tokenTypeAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return access, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func (s *Service) sign(user identity.User, secret, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"ver":   user.TokenVersion,
		"typ":   typ,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func parse(tokenString, secret, wantTyp string) (Claims, error) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5*time.Second))
	if err != nil || !tok.Valid {
		return Claims{}, errors.New("invalid token")
	}

	if typ, _ := claims["typ"].(string); typ != wantTyp {
		return Claims{}, errors.New("wrong token type")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Claims{}, errors.New("missing subject claim")
	}
	ver, _ := claims["ver"].(float64)
	return Claims{UserID: sub, TokenVersion: int(ver)}, nil
}
