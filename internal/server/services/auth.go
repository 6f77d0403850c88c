// Package services contains server-side business logic. AuthService runs
// registration, login, refresh-token rotation and the password reset flow
// over the credential store.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/reservation/internal/common"
	"github.com/dmitrijs2005/reservation/internal/dbx"
	"github.com/dmitrijs2005/reservation/internal/logging"
	"github.com/dmitrijs2005/reservation/internal/server/auth"
	"github.com/dmitrijs2005/reservation/internal/server/config"
	"github.com/dmitrijs2005/reservation/internal/server/metrics"
	"github.com/dmitrijs2005/reservation/internal/server/models"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/repomanager"
)

// Notifier queues an outgoing message without waiting for delivery.
type Notifier interface {
	Notify(to, subject, body string)
}

// CodeSource produces one-time codes.
type CodeSource interface {
	Generate() (string, error)
}

// Settings are the immutable knobs of the auth flows.
type Settings struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	OneTimeTokenTTL time.Duration
	FrontendURL     string

	// NotifyUnknownEmail generates and mails a reset link before checking
	// that the account exists. The link is useless for unknown addresses.
	NotifyUnknownEmail bool
}

// SettingsFromConfig copies the auth-related settings out of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		AccessTokenTTL:     cfg.AccessTokenValidityDuration,
		RefreshTokenTTL:    cfg.RefreshTokenValidityDuration,
		OneTimeTokenTTL:    cfg.OneTimeTokenValidityDuration,
		FrontendURL:        cfg.FrontendURL,
		NotifyUnknownEmail: cfg.NotifyUnknownEmail,
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email                string
	Password             string
	PasswordConfirmation string
	FirstName            string
	LastName             string
	PhoneNumber          string
	PropertyID           *int64
}

// Session is the result of a successful login or refresh.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

// RotationOutcome reports what happened to the stored refresh token during
// a refresh.
type RotationOutcome int

const (
	// RotationCommitted: the old record was replaced by the new one.
	RotationCommitted RotationOutcome = iota + 1
	// RotationLost: the old record was already gone, typically because a
	// concurrent refresh with the same token won.
	RotationLost
	// RotationAborted: the store failed and the transaction rolled back.
	RotationAborted
)

func (o RotationOutcome) String() string {
	switch o {
	case RotationCommitted:
		return "committed"
	case RotationLost:
		return "lost"
	case RotationAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

const (
	resetSubject = "Password reset"
	resetPath    = "/auth/reset-password"

	// dummyPassword is hashed once and verified against when the login email
	// is unknown, so both failure paths cost one hash verification.
	dummyPassword = "reservation-dummy-password"
)

// AuthService provides the authentication flows. It holds no mutable state
// besides the lazily computed dummy hash.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	codec       auth.TokenCodec
	codes       CodeSource
	notifier    Notifier
	logger      logging.Logger
	metrics     *metrics.Auth
	settings    Settings
	now         func() time.Time

	dummyHash func() (string, error)
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithMetrics records flow outcomes.
func WithMetrics(m *metrics.Auth) Option {
	return func(s *AuthService) { s.metrics = m }
}

// NewAuthService wires the service to its collaborators.
func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	hasher auth.PasswordHasher,
	codec auth.TokenCodec,
	codes CodeSource,
	notifier Notifier,
	logger logging.Logger,
	settings Settings,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		codec:       codec,
		codes:       codes,
		notifier:    notifier,
		logger:      logger.With("component", "auth"),
		settings:    settings,
		now:         time.Now,
	}
	s.dummyHash = sync.OnceValues(func() (string, error) {
		return hasher.Hash(dummyPassword)
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. The returned user still carries the password
// hash; callers must not serialise it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (_ *models.User, err error) {
	defer s.observe(ctx, "register", time.Now(), &err)

	email := normalizeEmail(in.Email)
	if !validEmail(email) {
		return nil, errInvalidInput("A valid email is required")
	}
	if in.Password == "" {
		return nil, errInvalidInput("Password is required")
	}
	if in.Password != in.PasswordConfirmation {
		return nil, errInvalidInput("Passwords do not match")
	}

	users := s.repomanager.Users(s.db)

	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil, errEmailTaken()
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, errInternal("lookup user", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, errInternal("hash password", err)
	}

	user, err := users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		PropertyID:   in.PropertyID,
	})
	if err != nil {
		// a concurrent registration won the unique index
		if errors.Is(err, common.ErrConflict) {
			return nil, errEmailTaken()
		}
		return nil, errInternal("create user", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies the credentials and opens a session. Unknown email and
// wrong password fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ *Session, err error) {
	defer s.observe(ctx, "login", time.Now(), &err)

	users := s.repomanager.Users(s.db)

	user, err := users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.burnVerification(password)
			return nil, errInvalidCredentials()
		}
		return nil, errInternal("lookup user", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, errInternal("verify password", err)
	}
	if !ok {
		return nil, errInvalidCredentials()
	}

	access, refresh, err := s.signPair(user)
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.settings.RefreshTokenTTL)
	if err := s.repomanager.RefreshTokens(s.db).Create(ctx, user.ID, auth.HashToken(refresh), expires); err != nil {
		return nil, errInternal("store refresh token", err)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshToken exchanges a stored refresh token for a new pair. The old
// record is deleted and the new one inserted in one transaction; if the old
// record is already gone the whole exchange fails and the client must log
// in again. A failed rotation is never retried.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (_ *Session, err error) {
	defer s.observe(ctx, "refresh", time.Now(), &err)

	if refreshToken == "" {
		return nil, errInvalidRefreshToken("empty")
	}
	if _, err := s.codec.Verify(refreshToken, auth.KindRefresh); err != nil {
		if errors.Is(err, auth.ErrSessionTokenExpired) {
			return nil, errInvalidRefreshToken("expired")
		}
		return nil, errInvalidRefreshToken("malformed")
	}

	oldHash := auth.HashToken(refreshToken)
	record, err := s.repomanager.RefreshTokens(s.db).Find(ctx, oldHash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, errInvalidRefreshToken("unknown")
		}
		return nil, errInternal("lookup refresh token", err)
	}
	if record.IsExpired(s.now()) {
		return nil, errInvalidRefreshToken("expired")
	}

	// claims are rebuilt from the stored user, never from the presented token
	user, err := s.repomanager.Users(s.db).GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, errInvalidRefreshToken("orphaned")
		}
		return nil, errInternal("lookup user", err)
	}

	access, refresh, err := s.signPair(user)
	if err != nil {
		return nil, err
	}

	expires := s.now().Add(s.settings.RefreshTokenTTL)
	outcome, rotErr := s.rotate(ctx, oldHash, user.ID, auth.HashToken(refresh), expires)
	s.metrics.RecordRotation(outcome.String())

	switch outcome {
	case RotationCommitted:
		return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
	case RotationLost:
		s.logger.Warn(ctx, "refresh token already rotated", "user_id", user.ID)
		return nil, errRotationFailed(outcome, nil)
	default:
		s.logger.Error(ctx, "refresh token rotation aborted", append([]any{"user_id", user.ID}, logging.ErrAttrs(rotErr)...)...)
		return nil, errRotationFailed(outcome, rotErr)
	}
}

func (s *AuthService) rotate(ctx context.Context, oldHash string, userID int64, newHash string, expires time.Time) (RotationOutcome, error) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.RefreshTokens(tx)
		if err := tokens.Delete(ctx, oldHash); err != nil {
			return err
		}
		return tokens.Create(ctx, userID, newHash, expires)
	})
	switch {
	case err == nil:
		return RotationCommitted, nil
	case errors.Is(err, common.ErrorNotFound):
		return RotationLost, err
	default:
		return RotationAborted, err
	}
}

// ForgotPassword stores a one-time reset code for the account and mails the
// reset link. Delivery happens in the background and its failure is only
// logged.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer s.observe(ctx, "forgot_password", time.Now(), &err)

	email = normalizeEmail(email)
	if email == "" {
		return errInvalidInput("Email is required")
	}
	if !validEmail(email) {
		return errInvalidInput("A valid email is required")
	}

	if s.settings.NotifyUnknownEmail {
		return s.forgotPasswordNotifyFirst(ctx, email)
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return errUserNotFound()
		}
		return errInternal("lookup user", err)
	}

	code, err := s.codes.Generate()
	if err != nil {
		return errInternal("generate code", err)
	}
	if err := s.storeResetCode(ctx, user.Email, code); err != nil {
		return err
	}
	s.notifier.Notify(user.Email, resetSubject, s.resetBody(code))
	return nil
}

// forgotPasswordNotifyFirst mails the link before the account lookup, so the
// response timing does not depend on whether the email is registered.
func (s *AuthService) forgotPasswordNotifyFirst(ctx context.Context, email string) error {
	code, err := s.codes.Generate()
	if err != nil {
		return errInternal("generate code", err)
	}
	s.notifier.Notify(email, resetSubject, s.resetBody(code))

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return errUserNotFound()
		}
		return errInternal("lookup user", err)
	}
	return s.storeResetCode(ctx, user.Email, code)
}

func (s *AuthService) storeResetCode(ctx context.Context, email, code string) error {
	err := s.repomanager.OneTimeTokens(s.db).Create(ctx, &models.OneTimeToken{
		CodeHash:  auth.HashToken(code),
		Email:     email,
		Purpose:   models.PurposePasswordReset,
		CreatedAt: s.now(),
	})
	if err != nil {
		return errInternal("store reset code", err)
	}
	return nil
}

func (s *AuthService) resetBody(code string) string {
	link := strings.TrimRight(s.settings.FrontendURL, "/") + resetPath + "?token=" + code
	return fmt.Sprintf("<a>%s</a>", link)
}

// ResetPassword consumes a reset code and sets a new password. The password
// update, the deletion of the user's reset codes and the revocation of their
// refresh tokens commit together; a code that was consumed concurrently rolls everything
// back.
func (s *AuthService) ResetPassword(ctx context.Context, code, newPassword string) (err error) {
	defer s.observe(ctx, "reset_password", time.Now(), &err)

	if code == "" {
		return errInvalidResetToken("empty")
	}
	if newPassword == "" {
		return errInvalidInput("Password is required")
	}

	codeHash := auth.HashToken(code)
	record, err := s.repomanager.OneTimeTokens(s.db).Find(ctx, codeHash, models.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return errInvalidResetToken("unknown")
		}
		return errInternal("lookup reset code", err)
	}
	if record.IsExpired(s.now(), s.settings.OneTimeTokenTTL) {
		return errInvalidResetToken("expired")
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, record.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return errUserNotFound()
		}
		return errInternal("lookup user", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return errInternal("hash password", err)
	}

	var consumed bool
	var revoked int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		if err := s.repomanager.OneTimeTokens(tx).Delete(ctx, codeHash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				consumed = true
			}
			return err
		}
		// the remaining reset links for this account die with the used one
		if _, err := s.repomanager.OneTimeTokens(tx).DeleteByEmail(ctx, record.Email, models.PurposePasswordReset); err != nil {
			return err
		}
		n, err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, user.ID)
		revoked = n
		return err
	})
	if err != nil {
		switch {
		case consumed:
			return errInvalidResetToken("consumed")
		case errors.Is(err, common.ErrorNotFound):
			return errUserNotFound()
		default:
			return errInternal("reset password", err)
		}
	}

	s.logger.Info(ctx, "password reset", "user_id", user.ID, "revoked_sessions", revoked)
	return nil
}

// Authenticate verifies an access token for a protected route.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*auth.SessionClaims, error) {
	claims, err := s.codec.Verify(accessToken, auth.KindAccess)
	if err != nil {
		s.logger.Debug(ctx, "access token rejected", logging.ErrAttrs(err)...)
		return nil, errInvalidSession()
	}
	return claims, nil
}

// PurgeExpired removes expired refresh tokens and stale reset codes.
func (s *AuthService) PurgeExpired(ctx context.Context) (refreshTokens, codes int64, err error) {
	now := s.now()

	refreshTokens, err = s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, errInternal("purge refresh tokens", err)
	}
	s.metrics.RecordPurge("refresh", refreshTokens)

	codes, err = s.repomanager.OneTimeTokens(s.db).DeleteExpired(ctx, now.Add(-s.settings.OneTimeTokenTTL))
	if err != nil {
		return refreshTokens, 0, errInternal("purge reset codes", err)
	}
	s.metrics.RecordPurge("reset_code", codes)

	return refreshTokens, codes, nil
}

// --- helpers below ---

func (s *AuthService) signPair(user *models.User) (access, refresh string, err error) {
	claims := auth.SessionClaims{UserID: user.ID, Email: user.Email, Admin: user.Admin}

	access, err = s.codec.Issue(claims, auth.KindAccess, s.settings.AccessTokenTTL)
	if err != nil {
		return "", "", errInternal("sign access token", err)
	}
	refresh, err = s.codec.Issue(claims, auth.KindRefresh, s.settings.RefreshTokenTTL)
	if err != nil {
		return "", "", errInternal("sign refresh token", err)
	}
	return access, refresh, nil
}

func (s *AuthService) burnVerification(password string) {
	hash, err := s.dummyHash()
	if err != nil {
		return
	}
	_, _ = s.hasher.Verify(password, hash)
}

// upgradeHash re-hashes a legacy password after a successful login. Failure
// keeps the old hash, which still verifies.
func (s *AuthService) upgradeHash(ctx context.Context, userID int64, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.repomanager.Users(s.db).UpdatePassword(ctx, userID, hash)
	}
	if err != nil {
		s.logger.Warn(ctx, "password hash upgrade failed", append([]any{"user_id", userID}, logging.ErrAttrs(err)...)...)
		return
	}
	s.logger.Info(ctx, "password hash upgraded", "user_id", userID)
}

func (s *AuthService) observe(ctx context.Context, operation string, start time.Time, err *error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case *err == nil:
	case errors.Is(*err, common.ErrorInternal):
		outcome = metrics.OutcomeError
		s.logger.Error(ctx, operation+" failed", logging.ErrAttrs(*err)...)
	default:
		outcome = metrics.OutcomeFailure
	}
	s.metrics.ObserveOperation(operation, outcome, time.Since(start))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	return ok && local != "" && domain != "" && !strings.ContainsAny(email, " \t\r\n")
}
