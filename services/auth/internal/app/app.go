package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
	"github.com/AniketChoudhary834/LMS/internal/util"
	"github.com/AniketChoudhary834/LMS/pkg/auth"
	"github.com/AniketChoudhary834/LMS/pkg/domain"
	"github.com/AniketChoudhary834/LMS/pkg/mail"
	"github.com/AniketChoudhary834/LMS/pkg/otp"
	"github.com/AniketChoudhary834/LMS/pkg/store"
)

const (
	registerSubject = "Your OTP for Registration"
	resetSubject    = "Password Reset OTP"
)

// Config holds runtime configuration for the identity service. Store,
// Sessions, Pending and Mailer are built from the connection settings when nil.
type Config struct {
	DatabaseURL         string
	Redis               *redis.Client
	SessionTTL          time.Duration
	JWTPrivateKeyPath   string
	JWTPublicKeyPath    string
	JWTKeyID            string
	JWTVerifyPublicKeys map[string]string
	JWTIssuer           string
	JWTAudience         string
	JWTLeeway           time.Duration
	OTPTTL              time.Duration
	// OTPStore selects the pending-flow backend: "redis" (default) or "memory".
	OTPStore string
	Store    store.UserStore
	Sessions store.SessionStore
	Pending  otp.Store
	Mailer   mail.Mailer
}

// App implements registration, login and password reset.
type App struct {
	store      store.UserStore
	sessions   store.SessionStore
	pending    otp.Store
	mailer     mail.Mailer
	otpTTL     time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// RegisterInput is a registration request after transport decoding.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.OTPTTL == 0 {
		cfg.OTPTTL = otp.DefaultTTL
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = gormStore
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.JWTPrivateKeyPath) == "" {
			return nil, fmt.Errorf("jwtPrivateKeyPath is required")
		}
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis client is required for token revocation")
		}
		revoker := store.NewRedisTokenRevoker(cfg.Redis, 0)
		rsStore, err := store.NewJWTRS256SessionStoreFromPEM(store.JWTKeyFiles{
			PrivateKeyPath: cfg.JWTPrivateKeyPath,
			PublicKeyPath:  cfg.JWTPublicKeyPath,
			KeyID:          cfg.JWTKeyID,
			VerifyKeyFiles: cfg.JWTVerifyPublicKeys,
		}, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init rs256 jwt session store: %w", err)
		}
		sessionStore = rsStore
	}

	pending := cfg.Pending
	if pending == nil {
		switch strings.ToLower(strings.TrimSpace(cfg.OTPStore)) {
		case "memory":
			pending = otp.NewMemoryStore(0)
		default:
			if cfg.Redis == nil {
				return nil, fmt.Errorf("redis client is required for the redis otp store")
			}
			pending = otp.NewRedisStore(cfg.Redis, "", 0)
		}
	}

	mailer := cfg.Mailer
	if mailer == nil {
		mailer = mail.NewLogMailer(slog.Default())
	}

	sessionTTL := cfg.SessionTTL
	if ttl, ok := sessionStore.(interface{ TTL() time.Duration }); ok {
		sessionTTL = ttl.TTL()
	}

	return &App{
		store:      dataStore,
		sessions:   sessionStore,
		pending:    pending,
		mailer:     mailer,
		otpTTL:     cfg.OTPTTL,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}, nil
}

// SessionTTL reports the lifetime of issued access tokens.
func (a *App) SessionTTL() time.Duration {
	return a.sessionTTL
}

// Register stores a pending registration and emails its OTP. A failed
// email leaves the pending entry in place.
func (a *App) Register(ctx context.Context, in RegisterInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.New(apperr.Validation, "userName is required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return err
	}
	role, ok := domain.ParseUserRole(in.Role)
	if !ok {
		return ErrInvalidRole
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return apperr.Wrap(apperr.Validation, err.Error(), err)
	}
	exists, err := a.store.HasUserEmailOrName(ctx, email, name)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if exists {
		return ErrUserExists
	}
	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	code, codeHash, err := otp.NewCode()
	if err != nil {
		return err
	}
	entry := otp.Pending{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		CodeHash:     codeHash,
		ExpiresAt:    a.now().UTC().Add(a.otpTTL),
	}
	if err := a.pending.Put(ctx, otp.PurposeRegister, entry); err != nil {
		return fmt.Errorf("store pending registration: %w", err)
	}
	return a.sendCode(ctx, email, registerSubject, "Welcome to Learning Portal.\n\nYour OTP for registration is: "+code)
}

// VerifyOTP completes a pending registration and returns the new user.
func (a *App) VerifyOTP(ctx context.Context, email, code string) (domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	p, err := otp.Consume(ctx, a.pending, otp.PurposeRegister, email, code, a.now())
	if err != nil {
		return domain.User{}, mapOTPError(err)
	}
	now := a.now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			a.discardPending(ctx, otp.PurposeRegister, email)
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	a.discardPending(ctx, otp.PurposeRegister, email)
	return user, nil
}

// Login validates credentials and issues an access token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue access token: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves the stored user behind a valid, unrevoked token.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, error) {
	identity, err := a.sessions.IdentityFromToken(token)
	if err != nil {
		if errors.Is(err, store.ErrTokenInvalid) || errors.Is(err, store.ErrTokenRevoked) {
			return domain.User{}, ErrUnauthorizedToken
		}
		return domain.User{}, fmt.Errorf("verify token: %w", err)
	}
	user, ok, err := a.store.GetUserByID(ctx, identity.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorizedToken
	}
	return user, nil
}

// Logout revokes the access token until it expires.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// ForgotPassword emails a reset OTP to an existing account.
func (a *App) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	_, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	code, codeHash, err := otp.NewCode()
	if err != nil {
		return err
	}
	entry := otp.Pending{
		Email:     email,
		CodeHash:  codeHash,
		ExpiresAt: a.now().UTC().Add(a.otpTTL),
	}
	if err := a.pending.Put(ctx, otp.PurposeReset, entry); err != nil {
		return fmt.Errorf("store pending reset: %w", err)
	}
	return a.sendCode(ctx, email, resetSubject, "Password Reset Request.\n\nYour OTP for password reset is: "+code)
}

// ResetPassword replaces the password after OTP confirmation and revokes
// every token issued before the reset.
func (a *App) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return apperr.Wrap(apperr.Validation, err.Error(), err)
	}
	if _, err := otp.Consume(ctx, a.pending, otp.PurposeReset, email, code, a.now()); err != nil {
		return mapOTPError(err)
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		a.discardPending(ctx, otp.PurposeReset, email)
		return ErrUserNotFound
	}
	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	revokeSince := a.now().UTC()
	user.PasswordHash = passwordHash
	user.UpdatedAt = revokeSince
	if err := a.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	a.discardPending(ctx, otp.PurposeReset, email)
	if err := a.revokeAllUserTokens(user.ID, revokeSince); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

// JWKS returns public signing keys when session store supports it.
func (a *App) JWKS() []store.JWK {
	provider, ok := a.sessions.(store.JWKSProvider)
	if !ok {
		return nil
	}
	return provider.JWKS()
}

func (a *App) revokeAllUserTokens(userID string, since time.Time) error {
	sessionRevoker, ok := a.sessions.(store.UserSessionRevoker)
	if !ok {
		return fmt.Errorf("session store does not support user token revocation")
	}
	return sessionRevoker.RevokeUserSessions(userID, since)
}

func (a *App) sendCode(ctx context.Context, email, subject, body string) error {
	body += "\n\nThis OTP is valid for " + a.otpTTL.String() + "."
	if err := a.mailer.Send(ctx, mail.Message{To: email, Subject: subject, Body: body}); err != nil {
		util.LoggerFromContext(ctx).Warn("otp email failed", "to", auth.MaskEmail(email), "subject", subject, "err", err)
		return apperr.Wrap(apperr.Upstream, ErrEmailDelivery.Message, err)
	}
	util.LoggerFromContext(ctx).Debug("otp email sent", "to", auth.MaskEmail(email), "subject", subject)
	return nil
}

func (a *App) discardPending(ctx context.Context, purpose otp.Purpose, email string) {
	if err := a.pending.Delete(ctx, purpose, email); err != nil {
		util.LoggerFromContext(ctx).Warn("discard pending otp failed", "purpose", purpose, "to", auth.MaskEmail(email), "err", err)
	}
}

func normalizeEmail(email string) (string, error) {
	normalized, err := auth.NormalizeEmail(email)
	if errors.Is(err, auth.ErrEmailRequired) {
		return "", apperr.New(apperr.Validation, "userEmail is required")
	}
	if err != nil {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

func mapOTPError(err error) error {
	switch {
	case errors.Is(err, otp.ErrNotFound):
		return ErrNoPendingOTP
	case errors.Is(err, otp.ErrInvalidCode):
		return ErrInvalidOTP
	case errors.Is(err, otp.ErrExpired):
		return ErrOTPExpired
	default:
		return fmt.Errorf("check otp: %w", err)
	}
}
