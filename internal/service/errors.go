package service

import "fmt"

// Error is the service-level error taxonomy. Handlers map Code/Status to
// the wire shape; storage and email failures are translated into one of
// these before they leave the service, never surfaced as raw driver errors.
type Error struct {
	Code       string
	Status     int
	Message    string
	RetryAfter int    // seconds, set for too_many_requests
	Field      string // set for field-specific conflicts (email, phone)
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

var (
	ErrEmailTaken = &Error{Code: "conflict", Status: 409, Message: "an account with this email already exists", Field: "email"}
	ErrPhoneTaken = &Error{Code: "conflict", Status: 409, Message: "an account with this phone number already exists", Field: "phone"}

	ErrUserNotFound    = &Error{Code: "not_found", Status: 404, Message: "user not found"}
	ErrInvalidPassword = &Error{Code: "invalid_password", Status: 401, Message: "invalid password"}
	ErrUnauthorized    = &Error{Code: "unauthorized", Status: 401, Message: "authentication required"}

	ErrCodeNotFound = &Error{Code: "not_found", Status: 404, Message: "no verification pending for this email"}
	ErrCodeExpired  = &Error{Code: "code_expired", Status: 400, Message: "verification code has expired"}
	ErrInvalidCode  = &Error{Code: "invalid_code", Status: 400, Message: "incorrect verification code"}

	ErrInvalidOrExpiredCode    = &Error{Code: "invalid_or_expired", Status: 400, Message: "invalid or expired code"}
	ErrOTPVerificationRequired = &Error{Code: "otp_verification_required", Status: 400, Message: "code verification required before resetting the password"}
	ErrWeakPassword            = &Error{Code: "validation_error", Status: 400, Message: "password must contain upper and lower case letters, a digit and a symbol"}

	ErrEmailDelivery = &Error{Code: "email_delivery_failed", Status: 500, Message: "failed to deliver verification email"}
	ErrInternal      = &Error{Code: "internal_error", Status: 500, Message: "internal server error"}
)

// TooManyRequests builds a 429 error carrying the advisory number of
// seconds the caller should wait before retrying.
func TooManyRequests(retryAfter int) *Error {
	return &Error{
		Code:       "too_many_requests",
		Status:     429,
		Message:    "please wait before requesting another code",
		RetryAfter: retryAfter,
	}
}
