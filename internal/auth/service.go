package auth

import (
	"context"
	"time"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/config"
	"github.com/rayenfassatoui/amen-bank/internal/identity"
)

// Service issues and verifies tokens for authenticated users.
type Service struct {
	cfg    config.Config
	ids    *identity.Service
	idRepo identity.Repository
	now    func() time.Time
}

// NewService builds the token service.
func NewService(cfg config.Config, ids *identity.Service, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, ids: ids, idRepo: idRepo, now: time.Now}
}

// TokenPair is returned by Login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

var errInvalidToken = apperr.New(apperr.KindUnauthenticated, "invalid or expired token")

// Login checks credentials and issues an access/refresh pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, identity.User, error) {
	user, err := s.ids.Authenticate(ctx, email, password)
	if err != nil {
		return TokenPair{}, identity.User{}, err
	}
	access, err := s.sign(user, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, identity.User{}, err
	}
	refresh, err := s.sign(user, tokenRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, identity.User{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, user, nil
}

func (s *Service) sign(user identity.User, use, secret string, ttl time.Duration) (string, error) {
	claims := newClaims(use, s.now(), ttl)
	claims.Subject = user.ID
	claims.Name = user.FullName()
	claims.Email = user.Email
	claims.Role = string(user.Role)
	claims.Agency = user.AgencyID
	claims.Version = user.TokenVersion
	signed, err := SignHS256(claims, []byte(secret))
	if err != nil {
		return "", apperr.Wrap(apperr.KindPersistence, "sign token", err)
	}
	return signed, nil
}

// Refresh verifies the refresh token and returns a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	user, err := s.verify(ctx, refreshToken, tokenRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	access, err := s.sign(user, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return access, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	_, err := s.idRepo.IncrementTokenVersion(ctx, userID)
	return err
}

// Resolve turns a bearer access token into the principal it identifies. The
// user is reloaded so deactivation, role changes and logout take effect
// immediately.
func (s *Service) Resolve(ctx context.Context, accessToken string) (authz.Principal, error) {
	user, err := s.verify(ctx, accessToken, tokenAccess, s.cfg.JWTSecret)
	if err != nil {
		return authz.Principal{}, err
	}
	return user.Principal(), nil
}

func (s *Service) verify(ctx context.Context, token, use, secret string) (identity.User, error) {
	claims, err := ParseHS256(token, []byte(secret))
	if err != nil || claims.Use != use {
		return identity.User{}, errInvalidToken
	}
	user, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return identity.User{}, errInvalidToken
		}
		return identity.User{}, err
	}
	if !user.IsActive || user.TokenVersion != claims.Version {
		return identity.User{}, apperr.New(apperr.KindUnauthenticated, "token invalidated")
	}
	return user, nil
}
