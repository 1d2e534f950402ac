package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/remix/authcore/internal/models"
	"github.com/remix/authcore/internal/services"
	pkgauth "github.com/remix/authcore/pkg/auth"
	pkghttp "github.com/remix/authcore/pkg/http"
)

// AccountServiceInterface defines the interface for account lifecycle logic
type AccountServiceInterface interface {
	Register(ctx context.Context, email, password string) (*services.RegistrationResult, error)
	VerifyEmail(ctx context.Context, token string) error
	Authenticate(ctx context.Context, email, password string) (*models.Account, error)
}

// TwoFactorServiceInterface defines the interface for login challenges
type TwoFactorServiceInterface interface {
	IssueChallenge(ctx context.Context, account *models.Account) error
	VerifyChallenge(ctx context.Context, email, code string) (*models.Account, error)
	UnlockAccount(ctx context.Context, token string) error
}

// SessionServiceInterface defines the interface for session issuance
type SessionServiceInterface interface {
	Create(ctx context.Context, account *models.Account) (*models.Session, error)
	Validate(ctx context.Context, token string) (bool, error)
	Invalidate(ctx context.Context, token string) error
}

// AuthHandler handles registration, verification, and the two-step login
type AuthHandler struct {
	accounts  AccountServiceInterface
	twoFactor TwoFactorServiceInterface
	sessions  SessionServiceInterface
	timing    *pkgauth.TimingDelay
}

// NewAuthHandler creates a new AuthHandler. timing evens out how long login
// failures take; pass a zero-config delay to disable it.
func NewAuthHandler(accounts AccountServiceInterface, twoFactor TwoFactorServiceInterface, sessions SessionServiceInterface, timing *pkgauth.TimingDelay) *AuthHandler {
	return &AuthHandler{
		accounts:  accounts,
		twoFactor: twoFactor,
		sessions:  sessions,
		timing:    timing,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginInitiateRequest represents the first login step (password check)
type LoginInitiateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginVerifyRequest represents the second login step (emailed code)
type LoginVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,numeric"`
}

// Response DTOs

// AccountResponse is the public view of an account (never the hash)
type AccountResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterResponse represents the registration response
type RegisterResponse struct {
	Account   AccountResponse `json:"account"`
	EmailSent bool            `json:"verification_email_sent"`
}

// LoginVerifyResponse carries the freshly minted session
type LoginVerifyResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   AccountResponse `json:"account"`
}

func accountResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}

// Register handles account creation
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		var pve *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrEmailAlreadyUsed):
			pkghttp.WriteConflict(w, "Email address is already registered")
		case errors.As(err, &pve):
			pkghttp.WriteBadRequest(w, pve.Error())
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid registration details")
		case services.IsInfraError(err):
			pkghttp.WriteUnavailable(w, "Registration is temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, RegisterResponse{
		Account:   accountResponse(result.Account),
		EmailSent: result.EmailSent,
	})
}

// VerifyEmail handles the verification link from the registration email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "Missing verification token")
		return
	}

	err := h.accounts.VerifyEmail(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenExpired):
			pkghttp.WriteError(w, http.StatusBadRequest, "token_expired",
				"Verification link expired; a new one has been sent to your email")
		case errors.Is(err, models.ErrTokenInvalid):
			pkghttp.WriteBadRequest(w, "Invalid verification token")
		case errors.Is(err, models.ErrAlreadyVerified):
			pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Email already verified"})
		case services.IsInfraError(err):
			pkghttp.WriteUnavailable(w, "Verification is temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
}

// LoginInitiate handles the password step of login and emails a code on
// success
func (h *AuthHandler) LoginInitiate(w http.ResponseWriter, r *http.Request) {
	var req LoginInitiateRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	start := time.Now()

	account, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// An unknown email fails faster than a bcrypt mismatch; even
		// that out before responding
		h.timing.WaitFrom(start, false)
		writeAuthFailure(w, err)
		return
	}

	if err := h.twoFactor.IssueChallenge(r.Context(), account); err != nil {
		pkghttp.WriteUnavailable(w, "Could not send verification code; please try again")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

// LoginVerify handles the code step of login and mints a session
func (h *AuthHandler) LoginVerify(w http.ResponseWriter, r *http.Request) {
	var req LoginVerifyRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	start := time.Now()

	account, err := h.twoFactor.VerifyChallenge(r.Context(), req.Email, req.Code)
	if err != nil {
		h.timing.WaitFrom(start, false)
		writeAuthFailure(w, err)
		return
	}

	session, err := h.sessions.Create(r.Context(), account)
	if err != nil {
		pkghttp.WriteUnavailable(w, "Could not establish session; please try again")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginVerifyResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Account:   accountResponse(account),
	})
}

// UnlockAccount handles the unlock link emailed after repeated code failures
func (h *AuthHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "Missing unlock token")
		return
	}

	err := h.twoFactor.UnlockAccount(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenInvalid):
			pkghttp.WriteBadRequest(w, "Invalid unlock token")
		case services.IsInfraError(err):
			pkghttp.WriteUnavailable(w, "Unlock is temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Account unlocked"})
}

// writeAuthFailure maps login-path errors. Credential and challenge failures
// collapse into a generic 401 so responses never confirm which accounts
// exist; lockouts surface as 429 because retrying immediately cannot help.
func writeAuthFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteTooManyRequests(w, "Too many failed attempts. Please try again later.")
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrEmailNotVerified),
		errors.Is(err, models.ErrNoActiveChallenge),
		errors.Is(err, models.ErrChallengeExpired),
		errors.Is(err, models.ErrChallengeInvalid):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case services.IsInfraError(err):
		pkghttp.WriteUnavailable(w, "Authentication is temporarily unavailable")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
