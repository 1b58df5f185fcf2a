package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"authd/internal/app/model/domain"
	"authd/internal/utils"
)

// Login authenticates by email or phone. Logins are additive: an existing
// session is never invalidated by a new one, so a user may hold many
// concurrent refresh tokens.
func (s *authServiceImpl) Login(ctx context.Context, emailOrPhone, password string) (*domain.User, *domain.TokenPair, error) {
	s.logger.WithFields(logrus.Fields{
		"identifier": emailOrPhone,
	}).Info("Starting login")

	user, err := s.lookupUser(ctx, emailOrPhone)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		s.metrics.Logins.WithLabelValues("not_found").Inc()
		return nil, nil, ErrUserNotFound
	}

	if user.PasswordHash == "" || !utils.CheckPasswordHash(password, user.PasswordHash) {
		s.metrics.Logins.WithLabelValues("invalid_password").Inc()
		return nil, nil, ErrInvalidPassword
	}

	tokens, err := s.generateTokens(ctx, user.ID, user.Email)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.Logins.WithLabelValues("success").Inc()

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
	}).Info("Login completed")

	return user, tokens, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated. Validity is an AND of signature,
// expiry and a live ledger row for the exact token string.
func (s *authServiceImpl) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrUnauthorized
	}

	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", ErrUnauthorized
	}

	exists, err := s.refreshRepo.Exists(ctx, refreshToken, time.Now())
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUnauthorized
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return "", err
	}

	s.metrics.TokenRefreshes.Inc()

	return accessToken, nil
}

// Logout revokes every refresh token of the caller, logging out all
// devices. The caller is resolved opportunistically from whichever token
// is present; a missing or invalid token is tolerated, and the operation
// always reports success.
func (s *authServiceImpl) Logout(ctx context.Context, refreshToken, accessToken string) error {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		claims, err = s.jwtManager.ValidateAccessToken(accessToken)
	}
	if err != nil {
		return nil
	}

	if err := s.refreshRepo.DeleteAllForUser(ctx, claims.UserID); err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": claims.UserID,
			"error":   err.Error(),
		}).Error("Failed to revoke refresh tokens on logout")
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": claims.UserID,
	}).Info("User logged out")

	return nil
}

func (s *authServiceImpl) lookupUser(ctx context.Context, emailOrPhone string) (*domain.User, error) {
	if strings.Contains(emailOrPhone, "@") {
		return s.userRepo.GetByEmail(ctx, normalizeEmail(emailOrPhone))
	}

	user, err := s.userRepo.GetByPhone(ctx, strings.TrimSpace(emailOrPhone))
	if err != nil || user != nil {
		return user, err
	}

	return s.userRepo.GetByEmail(ctx, normalizeEmail(emailOrPhone))
}
