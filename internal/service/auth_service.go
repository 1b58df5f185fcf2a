package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"authd/internal/app/model/domain"
)

// AuthService defines the interface for authentication business logic.
type AuthService interface {
	// Registration flow
	Register(ctx context.Context, req *RegisterRequest) error
	ResendCode(ctx context.Context, email, clientIP string) error
	VerifyRegistration(ctx context.Context, req *VerifyRegistrationRequest) (*domain.User, *domain.TokenPair, error)

	// Session flow
	Login(ctx context.Context, emailOrPhone, password string) (*domain.User, *domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken, accessToken string) error

	// Password-recovery flow
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetOTP(ctx context.Context, email, code string) error
	ValidateResetAccess(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, password string) error

	// User lookup for authenticated requests
	GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Maintenance
	SweepExpired(ctx context.Context) error
}

// EmailSender delivers one-time codes to users. Implemented by
// *email.Client.
type EmailSender interface {
	SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error
	SendResetCode(ctx context.Context, to, code string, ttl time.Duration) error
}

// Service request DTOs

type RegisterRequest struct {
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	DateOfBirth string
	Password    string
	ClientIP    string
}

type VerifyRegistrationRequest struct {
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	DateOfBirth string
	Password    string
	OTP         string
}

// Config holds state-machine timing policy.
type Config struct {
	OTPLength      int
	OTPTTL         time.Duration
	ResendCooldown time.Duration
}
