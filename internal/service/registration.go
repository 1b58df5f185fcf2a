package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"authd/internal/app/model/db"
	"authd/internal/app/model/domain"
	"authd/internal/rate"
	"authd/internal/utils"
)

// Register starts the registration state machine: conflict checks, code
// issuance and delivery. No account exists until VerifyRegistration
// succeeds.
func (s *authServiceImpl) Register(ctx context.Context, req *RegisterRequest) error {
	emailAddr := normalizeEmail(req.Email)

	s.logger.WithFields(logrus.Fields{
		"email": emailAddr,
	}).Info("Starting registration")

	if err := s.otpThrottle.Allow(ctx, emailAddr, req.ClientIP); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return TooManyRequests(int(s.config.ResendCooldown.Seconds()))
		}
		return err
	}

	if exists, err := s.userRepo.EmailExists(ctx, emailAddr); err != nil {
		return err
	} else if exists {
		return ErrEmailTaken
	}

	if exists, err := s.userRepo.PhoneExists(ctx, req.Phone); err != nil {
		return err
	} else if exists {
		return ErrPhoneTaken
	}

	return s.issueRegistrationCode(ctx, emailAddr)
}

// ResendCode refreshes the pending verification code, subject to the
// resend cooldown. Fails with a conflict if the email already belongs to a
// registered account.
func (s *authServiceImpl) ResendCode(ctx context.Context, emailAddr, clientIP string) error {
	emailAddr = normalizeEmail(emailAddr)

	s.logger.WithFields(logrus.Fields{
		"email": emailAddr,
	}).Info("Resending verification code")

	if err := s.otpThrottle.Allow(ctx, emailAddr, clientIP); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return TooManyRequests(int(s.config.ResendCooldown.Seconds()))
		}
		return err
	}

	if exists, err := s.userRepo.EmailExists(ctx, emailAddr); err != nil {
		return err
	} else if exists {
		return ErrEmailTaken
	}

	record, err := s.verifyRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if record != nil {
		challenge := &domain.Challenge{
			SubjectKey: record.Email,
			Code:       record.Code,
			ExpiresAt:  record.ExpiresAt,
			Attempts:   record.Attempts,
		}
		if remaining := challenge.CooldownRemaining(time.Now(), s.config.OTPTTL, s.config.ResendCooldown); remaining > 0 {
			return TooManyRequests(int(math.Ceil(remaining.Seconds())))
		}
	}

	return s.issueRegistrationCode(ctx, emailAddr)
}

// issueRegistrationCode generates a fresh code, upserts the verification
// record (replacing any prior code and resetting attempts) and sends the
// email. A failed send leaves the record in place: the stored code is
// still valid and a later resend will overwrite it.
func (s *authServiceImpl) issueRegistrationCode(ctx context.Context, emailAddr string) error {
	code, err := utils.GenerateOTP(s.config.OTPLength)
	if err != nil {
		return err
	}

	record := &db.EmailVerification{
		Email:     emailAddr,
		Code:      code,
		ExpiresAt: time.Now().Add(s.config.OTPTTL),
	}
	if err := s.verifyRepo.Upsert(ctx, record); err != nil {
		return err
	}

	s.metrics.OTPSent.WithLabelValues("registration").Inc()

	if err := s.emailClient.SendVerificationCode(ctx, emailAddr, code, s.config.OTPTTL); err != nil {
		s.logger.WithFields(logrus.Fields{
			"email": emailAddr,
			"error": err.Error(),
		}).Error("Failed to send verification code")
		return ErrEmailDelivery
	}

	return nil
}

// VerifyRegistration completes the registration state machine: checks the
// code against the pending record, creates the account and issues the
// first session.
func (s *authServiceImpl) VerifyRegistration(ctx context.Context, req *VerifyRegistrationRequest) (*domain.User, *domain.TokenPair, error) {
	emailAddr := normalizeEmail(req.Email)

	s.logger.WithFields(logrus.Fields{
		"email": emailAddr,
	}).Info("Verifying registration code")

	record, err := s.verifyRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, ErrCodeNotFound
	}

	challenge := &domain.Challenge{
		SubjectKey: record.Email,
		Code:       record.Code,
		ExpiresAt:  record.ExpiresAt,
		Attempts:   record.Attempts,
	}

	if challenge.Expired(time.Now()) {
		return nil, nil, ErrCodeExpired
	}

	if !challenge.Matches(req.OTP) {
		if err := s.verifyRepo.IncrementAttempts(ctx, emailAddr); err != nil {
			s.logger.WithFields(logrus.Fields{
				"email": emailAddr,
				"error": err.Error(),
			}).Error("Failed to increment attempt counter")
		}
		return nil, nil, ErrInvalidCode
	}

	if err := s.verifyRepo.Delete(ctx, emailAddr); err != nil {
		return nil, nil, err
	}

	// Another registration may have completed between initiate and verify.
	if exists, err := s.userRepo.EmailExists(ctx, emailAddr); err != nil {
		return nil, nil, err
	} else if exists {
		return nil, nil, ErrEmailTaken
	}
	if exists, err := s.userRepo.PhoneExists(ctx, req.Phone); err != nil {
		return nil, nil, err
	} else if exists {
		return nil, nil, ErrPhoneTaken
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        emailAddr,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		DateOfBirth:  req.DateOfBirth,
		PasswordHash: hashed,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// A concurrent verify may win the insert race on the unique
		// constraints; the loser gets a conflict, not a server error.
		switch {
		case isEmailConflict(err):
			return nil, nil, ErrEmailTaken
		case isPhoneConflict(err):
			return nil, nil, ErrPhoneTaken
		}
		return nil, nil, err
	}

	tokens, err := s.generateTokens(ctx, user.ID, user.Email)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.Registrations.Inc()

	s.logger.WithFields(logrus.Fields{
		"email":   emailAddr,
		"user_id": user.ID,
	}).Info("Registration completed")

	return user, tokens, nil
}
