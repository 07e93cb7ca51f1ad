package app

import "github.com/AniketChoudhary834/LMS/internal/apperr"

var (
	// ErrInvalidCredentials is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "incorrect email address or password")

	ErrUserExists        = apperr.New(apperr.Conflict, "user name or email already exists")
	ErrUserNotFound      = apperr.New(apperr.NotFound, "user not found")
	ErrNoPendingOTP      = apperr.New(apperr.NotFound, "no pending verification for this email")
	ErrInvalidOTP        = apperr.New(apperr.InvalidCode, "invalid otp")
	ErrOTPExpired        = apperr.New(apperr.Expired, "otp expired, request a new one")
	ErrEmailDelivery     = apperr.New(apperr.Upstream, "failed to send email")
	ErrInvalidRole       = apperr.New(apperr.Validation, "role must be student or instructor")
	ErrInvalidEmail      = apperr.New(apperr.Validation, "userEmail must be a valid email")
	ErrUnauthorizedToken = apperr.New(apperr.Unauthorized, "unauthorized")
)
