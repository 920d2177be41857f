package auth

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/mfi_wallet/internal/config"
	"github.com/congo-pay/mfi_wallet/internal/member"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenInvalidated = errors.New("token version invalidated")
)

// Service issues and revokes member tokens.
type Service struct {
	cfg     config.Config
	members member.Repository
	now     func() time.Time
}

// NewService builds the token service.
func NewService(cfg config.Config, members member.Repository) *Service {
	return &Service{cfg: cfg, members: members, now: time.Now}
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues an access and refresh token for an authenticated member.
func (s *Service) Login(m member.Member) (TokenPair, error) {
	now := s.now()
	access, _, err := Sign(m.ID, m.TokenVersion, m.Tier, []byte(s.cfg.JWTSecret), s.cfg.AccessTokenTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := Sign(m.ID, m.TokenVersion, m.Tier, []byte(s.cfg.RefreshSecret), s.cfg.RefreshTokenTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

// Verify checks an access token against the member's current token version.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	return s.verify(ctx, token, s.cfg.JWTSecret)
}

// Refresh verifies the refresh token and returns a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, _, err := Sign(claims.Subject, claims.Version, claims.Tier, []byte(s.cfg.JWTSecret), s.cfg.AccessTokenTTL, s.now())
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so every outstanding token stops
// verifying.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return err
	}
	return s.members.UpdateTokenVersion(ctx, claims.Subject, claims.Version+1)
}

func (s *Service) verify(ctx context.Context, token, secret string) (*Claims, error) {
	claims, err := Parse(token, []byte(secret))
	if err != nil {
		return nil, ErrInvalidToken
	}
	m, err := s.members.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if m.TokenVersion != claims.Version {
		return nil, ErrTokenInvalidated
	}
	return claims, nil
}
