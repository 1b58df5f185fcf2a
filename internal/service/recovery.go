package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"authd/internal/utils"
)

// ForgotPassword starts the recovery state machine. The caller always gets
// a generic success whether or not the account exists; only a failed email
// send is surfaced, after rolling the stored code back.
func (s *authServiceImpl) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)

	s.logger.WithFields(logrus.Fields{
		"email": emailAddr,
	}).Info("Starting password recovery")

	user, err := s.userRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user == nil {
		// Do not reveal whether the account exists.
		return nil
	}

	code, err := utils.GenerateOTP(s.config.OTPLength)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(s.config.OTPTTL)
	if err := s.userRepo.SetResetCode(ctx, user.ID, code, expiresAt); err != nil {
		return err
	}

	s.metrics.OTPSent.WithLabelValues("password_reset").Inc()

	if err := s.emailClient.SendResetCode(ctx, emailAddr, code, s.config.OTPTTL); err != nil {
		s.logger.WithFields(logrus.Fields{
			"email": emailAddr,
			"error": err.Error(),
		}).Error("Failed to send reset code, rolling back")

		if clearErr := s.userRepo.ClearResetCode(ctx, user.ID); clearErr != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id": user.ID,
				"error":   clearErr.Error(),
			}).Error("Failed to roll back reset code")
		}
		return ErrEmailDelivery
	}

	return nil
}

// VerifyResetOTP checks the emailed code against the user row. Email, code
// and unexpired expiry are matched in a single query, so wrong code,
// expired code and unknown user are indistinguishable to the caller. A
// matching code is cleared immediately: it is single-use.
func (s *authServiceImpl) VerifyResetOTP(ctx context.Context, emailAddr, code string) error {
	emailAddr = normalizeEmail(emailAddr)

	user, err := s.userRepo.GetByEmailAndResetCode(ctx, emailAddr, code, time.Now())
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidOrExpiredCode
	}

	if err := s.userRepo.ClearResetCode(ctx, user.ID); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
	}).Info("Reset code verified")

	return nil
}

// ValidateResetAccess guards the reset form: it succeeds only once the
// code has been verified (and therefore cleared).
func (s *authServiceImpl) ValidateResetAccess(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)

	user, err := s.userRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if user.ResetInProgress() {
		return ErrOTPVerificationRequired
	}

	return nil
}

// ResetPassword sets the new password. A still-present reset code means
// VerifyResetOTP has not run, so the change is refused. No code is
// consumed here; verification already cleared it.
func (s *authServiceImpl) ResetPassword(ctx context.Context, emailAddr, password string) error {
	emailAddr = normalizeEmail(emailAddr)

	user, err := s.userRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if user.ResetInProgress() {
		return ErrOTPVerificationRequired
	}

	if !utils.IsStrongPassword(password) {
		return ErrWeakPassword
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return err
	}

	s.metrics.PasswordResets.Inc()

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
	}).Info("Password reset completed")

	return nil
}
