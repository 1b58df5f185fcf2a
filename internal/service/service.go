package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"authd/internal/app/model/domain"
	"authd/internal/app/repo"
	"authd/internal/metrics"
	"authd/internal/rate"
	"authd/internal/utils"
)

// authServiceImpl implements the AuthService interface.
type authServiceImpl struct {
	userRepo    repo.UserRepository
	verifyRepo  repo.VerificationRepository
	refreshRepo repo.RefreshTokenRepository
	emailClient EmailSender
	jwtManager  *utils.JWTManager
	otpThrottle *rate.Limiter
	metrics     *metrics.Metrics
	logger      *logrus.Logger
	config      *Config
}

// NewAuthService creates a new instance of AuthService.
func NewAuthService(
	userRepo repo.UserRepository,
	verifyRepo repo.VerificationRepository,
	refreshRepo repo.RefreshTokenRepository,
	emailClient EmailSender,
	jwtManager *utils.JWTManager,
	otpThrottle *rate.Limiter,
	m *metrics.Metrics,
	logger *logrus.Logger,
	config *Config,
) AuthService {
	return &authServiceImpl{
		userRepo:    userRepo,
		verifyRepo:  verifyRepo,
		refreshRepo: refreshRepo,
		emailClient: emailClient,
		jwtManager:  jwtManager,
		otpThrottle: otpThrottle,
		metrics:     m,
		logger:      logger,
		config:      config,
	}
}

// normalizeEmail lowercases and trims an address so uniqueness checks and
// verification lookups are case-insensitive.
func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func isEmailConflict(err error) bool {
	return errors.Is(err, repo.ErrEmailExists)
}

func isPhoneConflict(err error) bool {
	return errors.Is(err, repo.ErrPhoneExists)
}

func (s *authServiceImpl) generateTokens(ctx context.Context, userID uuid.UUID, emailAddr string) (*domain.TokenPair, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(userID, emailAddr)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.jwtManager.GetRefreshTokenTTL())
	if err := s.refreshRepo.Create(ctx, refreshToken, userID, expiresAt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtManager.GetAccessTokenTTL().Seconds()),
	}, nil
}

func (s *authServiceImpl) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// SweepExpired removes expired refresh-token ledger rows and expired
// verification records. Run periodically so ledger storage does not grow
// without bound between logouts.
func (s *authServiceImpl) SweepExpired(ctx context.Context) error {
	now := time.Now()

	tokens, err := s.refreshRepo.DeleteExpired(ctx, now)
	if err != nil {
		return err
	}

	records, err := s.verifyRepo.DeleteExpired(ctx, now)
	if err != nil {
		return err
	}

	if tokens > 0 || records > 0 {
		s.logger.WithFields(logrus.Fields{
			"refresh_tokens":       tokens,
			"verification_records": records,
		}).Info("Swept expired records")
	}

	return nil
}
