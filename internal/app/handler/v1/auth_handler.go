package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"authd/internal/app/model/api"
	"authd/internal/app/model/domain"
	"authd/internal/service"
	"authd/internal/utils"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

type contextKey string

const userIDKey contextKey = "user_id"

// AuthHandler handles authentication HTTP requests.
type AuthHandler struct {
	authService service.AuthService
	jwtManager  *utils.JWTManager
	validator   *validator.Validate
	logger      *logrus.Logger
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(authService service.AuthService, jwtManager *utils.JWTManager, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtManager:  jwtManager,
		validator:   validator.New(),
		logger:      logger,
	}
}

// RegisterRoutes registers authentication routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		// Public routes
		r.Post("/register/initiate", h.RegisterInitiate)
		r.Post("/register/resend", h.RegisterResend)
		r.Post("/register/verify", h.RegisterVerify)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/verify-reset-otp", h.VerifyResetOTP)
		r.Get("/validate-reset-access", h.ValidateResetAccess)
		r.Post("/reset-password", h.ResetPassword)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/me", h.GetMe)
		})
	})
}

// RegisterInitiate starts a registration and emails a verification code.
// No account is created until the code is verified.
func (h *AuthHandler) RegisterInitiate(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.renderValidationError(w, r, err)
		return
	}

	serviceReq := &service.RegisterRequest{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Email:       req.Email,
		DateOfBirth: req.DateOfBirth,
		Password:    req.Password,
		ClientIP:    clientIP(r),
	}

	if err := h.authService.Register(r.Context(), serviceReq); err != nil {
		h.renderServiceError(w, r, err, "Registration initiate failed")
		return
	}

	h.renderSuccess(w, r, http.StatusOK, "Verification code sent to your email address")
}

// RegisterResend re-issues the pending verification code, subject to the
// resend cooldown.
func (h *AuthHandler) RegisterResend(w http.ResponseWriter, r *http.Request) {
	var req api.ResendCodeRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.renderValidationError(w, r, err)
		return
	}

	if err := h.authService.ResendCode(r.Context(), req.Email, clientIP(r)); err != nil {
		h.renderServiceError(w, r, err, "Code resend failed")
		return
	}

	h.renderSuccess(w, r, http.StatusOK, "Verification code sent to your email address")
}

// RegisterVerify completes registration: on a correct code it creates the
// account, starts a session and sets both token cookies.
func (h *AuthHandler) RegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRegistrationRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.renderValidationError(w, r, err)
		return
	}

	serviceReq := &service.VerifyRegistrationRequest{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Email:       req.Email,
		DateOfBirth: req.DateOfBirth,
		Password:    req.Password,
		OTP:         req.OTP,
	}

	user, tokens, err := h.authService.VerifyRegistration(r.Context(), serviceReq)
	if err != nil {
		h.renderServiceError(w, r, err, "Registration verify failed")
		return
	}

	h.setSessionCookies(w, r, tokens)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toUserResponse(user))
}

// Login authenticates with email or phone plus password and sets both
// token cookies. Existing sessions stay valid.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.renderValidationError(w, r, err)
		return
	}

	user, tokens, err := h.authService.Login(r.Context(), req.EmailOrPhone, req.Password)
	if err != nil {
		h.renderServiceError(w, r, err, "Login failed")
		return
	}

	h.setSessionCookies(w, r, tokens)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toUserResponse(user))
}

// Refresh exchanges the refresh-token cookie for a new access-token
// cookie. The refresh cookie itself is never rotated here.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		h.renderServiceError(w, r, service.ErrUnauthorized, "Refresh without cookie")
		return
	}

	accessToken, err := h.authService.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.renderServiceError(w, r, err, "Token refresh failed")
		return
	}

	h.setCookie(w, r, accessCookieName, accessToken, int(h.jwtManager.GetAccessTokenTTL().Seconds()))

	h.renderSuccess(w, r, http.StatusOK, "Access token refreshed")
}

// Logout revokes all of the caller's refresh tokens and clears both
// cookies. It succeeds even when no valid token is presented.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var refreshToken, accessToken string
	if c, err := r.Cookie(refreshCookieName); err == nil {
		refreshToken = c.Value
	}
	accessToken = h.accessTokenFrom(r)

	if err := h.authService.Logout(r.Context(), refreshToken, accessToken); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("Logout failed")
	}

	h.clearCookie(w, r, accessCookieName)
	h.clearCookie(w, r, refreshCookieName)

	h.renderSuccess(w, r, http.StatusOK, "Logged out successfully")
}

// ForgotPassword emails a reset code. The response is identical whether or
// not the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ForgotPasswordRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.renderValidationError(w, r, err)
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		h.renderServiceError(w, r, err, "Forgot password failed")
		return
	}

	h.renderSuccess(w, r, http.StatusOK, "If an account exists for this email, a reset code has been sent")
}

// VerifyResetOTP checks the emailed reset code. A matching code is cleared
// and may not be used again.
func (h *AuthHandler) VerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyResetOTPRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.renderValidationError(w, r, err)
		return
	}

	if err := h.authService.VerifyResetOTP(r.Context(), req.Email, req.OTP); err != nil {
		h.renderServiceError(w, r, err, "Reset code verification failed")
		return
	}

	h.renderSuccess(w, r, http.StatusOK, "Code verified")
}

// ValidateResetAccess guards the reset form: success means the code was
// already verified and the form may be shown.
func (h *AuthHandler) ValidateResetAccess(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := h.validator.Var(email, "required,email"); err != nil {
		h.renderValidationError(w, r, err)
		return
	}

	if err := h.authService.ValidateResetAccess(r.Context(), email); err != nil {
		h.renderServiceError(w, r, err, "Reset access validation failed")
		return
	}

	h.renderSuccess(w, r, http.StatusOK, "Reset access granted")
}

// ResetPassword sets the new password once the reset code has been
// verified and cleared.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ResetPasswordRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.renderValidationError(w, r, err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Email, req.Password); err != nil {
		h.renderServiceError(w, r, err, "Password reset failed")
		return
	}

	h.renderSuccess(w, r, http.StatusOK, "Password reset successfully")
}

// GetMe returns the authenticated caller's profile.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(uuid.UUID)
	if !ok {
		h.renderServiceError(w, r, service.ErrUnauthorized, "Missing user context")
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		h.renderServiceError(w, r, err, "Failed to get user")
		return
	}
	if user == nil {
		h.renderServiceError(w, r, service.ErrUserNotFound, "User not found")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toUserResponse(user))
}

// RequireAuth authenticates the request from the access-token cookie,
// falling back to an Authorization bearer header.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := h.accessTokenFrom(r)
		if tokenString == "" {
			h.renderServiceError(w, r, service.ErrUnauthorized, "Missing access token")
			return
		}

		claims, err := h.jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			h.renderServiceError(w, r, service.ErrUnauthorized, "Invalid access token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Helper methods

func (h *AuthHandler) accessTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(accessCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}

	return ""
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, r *http.Request, tokens *domain.TokenPair) {
	h.setCookie(w, r, accessCookieName, tokens.AccessToken, int(h.jwtManager.GetAccessTokenTTL().Seconds()))
	h.setCookie(w, r, refreshCookieName, tokens.RefreshToken, int(h.jwtManager.GetRefreshTokenTTL().Seconds()))
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

func (h *AuthHandler) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return h.validator.Struct(v)
}

func (h *AuthHandler) renderValidationError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, &api.ErrorResponse{
		Error: api.ErrorBody{
			Code:    "validation_error",
			Message: err.Error(),
		},
	})
}

// renderServiceError maps a service error onto the wire shape. Anything
// outside the taxonomy becomes an opaque internal error.
func (h *AuthHandler) renderServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
			"path":  r.URL.Path,
		}).Error(logMsg)
		svcErr = service.ErrInternal
	} else if svcErr.Status >= 500 {
		h.logger.WithFields(logrus.Fields{
			"code": svcErr.Code,
			"path": r.URL.Path,
		}).Error(logMsg)
	}

	body := api.ErrorBody{
		Code:    svcErr.Code,
		Message: svcErr.Message,
	}
	if svcErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(svcErr.RetryAfter))
		body.Details = map[string]any{"retryAfter": svcErr.RetryAfter}
	}
	if svcErr.Field != "" {
		body.Details = map[string]any{"field": svcErr.Field}
	}

	render.Status(r, svcErr.Status)
	render.JSON(w, r, &api.ErrorResponse{Error: body})
}

func (h *AuthHandler) renderSuccess(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, &api.SuccessResponse{Message: message})
}

func toUserResponse(user *domain.User) *api.UserResponse {
	return &api.UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		DateOfBirth: user.DateOfBirth,
		CreatedAt:   user.CreatedAt,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
