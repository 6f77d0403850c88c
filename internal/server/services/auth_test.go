package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/reservation/internal/common"
	"github.com/dmitrijs2005/reservation/internal/server/auth"
	"github.com/dmitrijs2005/reservation/internal/server/models"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/repomanager"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func codeOf(t *testing.T, err error) string {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %v", err)
	return fmtCode(oopsErr.Code())
}

func fmtCode(c any) string {
	if s, ok := c.(string); ok {
		return s
	}
	return ""
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	e := newEnv(t)

	u, err := e.svc.Register(context.Background(), RegisterInput{
		Email: "  A@B.com ", Password: "x", PasswordConfirmation: "x",
		FirstName: "Ann", LastName: "Lee", PhoneNumber: "+100",
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "a@b.com", u.Email)
	assert.NotEqual(t, "x", u.PasswordHash)
	assert.False(t, u.Admin)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")

	_, err := e.svc.Register(context.Background(), RegisterInput{Email: "A@b.com", Password: "y", PasswordConfirmation: "y"})
	require.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, "Email already exists", PublicMessage(err))
}

func TestRegister_InvalidInput(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name string
		in   RegisterInput
		msg  string
	}{
		{"missing email", RegisterInput{Password: "x", PasswordConfirmation: "x"}, "A valid email is required"},
		{"no at sign", RegisterInput{Email: "ab.com", Password: "x", PasswordConfirmation: "x"}, "A valid email is required"},
		{"empty password", RegisterInput{Email: "a@b.com"}, "Password is required"},
		{"mismatch", RegisterInput{Email: "a@b.com", Password: "x", PasswordConfirmation: "y"}, "Passwords do not match"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Register(context.Background(), tc.in)
			require.ErrorIs(t, err, common.ErrInvalidInput)
			assert.Equal(t, tc.msg, PublicMessage(err))
		})
	}
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "a@b.com", "x")

	s, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)
	assert.Equal(t, u.ID, s.User.ID)
	assert.Equal(t, "Ann", s.User.FirstName)

	claims, err := e.codec.Verify(s.AccessToken, auth.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)

	_, err = e.codec.Verify(s.RefreshToken, auth.KindRefresh)
	require.NoError(t, err)

	rec, err := e.rm.RefreshTokens(e.db).Find(context.Background(), auth.HashToken(s.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, u.ID, rec.UserID)
	assert.WithinDuration(t, e.clock.Now().Add(e.settings.RefreshTokenTTL), rec.Expires, time.Second)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")

	_, unknown := e.svc.Login(context.Background(), "nobody@b.com", "x")
	_, wrong := e.svc.Login(context.Background(), "a@b.com", "y")

	require.ErrorIs(t, unknown, common.ErrorUnauthorized)
	require.ErrorIs(t, wrong, common.ErrorUnauthorized)
	assert.Equal(t, codeOf(t, unknown), codeOf(t, wrong))
	assert.Equal(t, PublicMessage(unknown), PublicMessage(wrong))
	assert.Equal(t, "Invalid email or password", PublicMessage(wrong))
	assert.Equal(t, unknown.Error(), wrong.Error())
}

func TestLogin_UpgradesLegacyHash(t *testing.T) {
	e := newEnvWithHasher(t, auth.NewArgon2idHasher())

	legacy, err := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := e.rm.Users(e.db).Create(context.Background(), &models.User{Email: "old@b.com", PasswordHash: string(legacy)})
	require.NoError(t, err)

	_, err = e.svc.Login(context.Background(), "old@b.com", "x")
	require.NoError(t, err)

	stored, err := e.rm.Users(e.db).GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	_, err = e.svc.Login(context.Background(), "old@b.com", "x")
	require.NoError(t, err)
}

// --- Refresh ---

func TestRefresh_Rotates(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "a@b.com", "x")
	first, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	second, err := e.svc.RefreshToken(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, u.ID, second.User.ID)
	assert.Equal(t, 1, e.refreshTokenCount(t, u.ID))

	_, err = e.rm.RefreshTokens(e.db).Find(context.Background(), auth.HashToken(first.RefreshToken))
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRefresh_RotatedAndNeverIssuedFailIdentically(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "a@b.com", "x")
	first, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)
	_, err = e.svc.RefreshToken(context.Background(), first.RefreshToken)
	require.NoError(t, err)

	forged, err := e.codec.Issue(auth.SessionClaims{UserID: u.ID, Email: u.Email}, auth.KindRefresh, time.Hour)
	require.NoError(t, err)

	_, rotated := e.svc.RefreshToken(context.Background(), first.RefreshToken)
	_, neverIssued := e.svc.RefreshToken(context.Background(), forged)

	require.ErrorIs(t, rotated, common.ErrorUnauthorized)
	require.ErrorIs(t, neverIssued, common.ErrorUnauthorized)
	assert.Equal(t, PublicMessage(rotated), PublicMessage(neverIssued))
	assert.Equal(t, codeOf(t, rotated), codeOf(t, neverIssued))
}

func TestRefresh_RejectsBadTokens(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")
	s, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"access token": s.AccessToken,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.svc.RefreshToken(context.Background(), token)
			require.ErrorIs(t, err, common.ErrorUnauthorized)
			assert.Equal(t, "Invalid refresh token", PublicMessage(err))
		})
	}
}

func TestRefresh_Expired(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")
	s, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	e.clock.Advance(e.settings.RefreshTokenTTL + time.Second)

	_, err = e.svc.RefreshToken(context.Background(), s.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefresh_ClaimsComeFromStore(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "a@b.com", "x")
	s, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	_, err = e.db.Exec(`UPDATE users SET admin = 1 WHERE id = ?`, u.ID)
	require.NoError(t, err)

	next, err := e.svc.RefreshToken(context.Background(), s.RefreshToken)
	require.NoError(t, err)
	claims, err := e.codec.Verify(next.AccessToken, auth.KindAccess)
	require.NoError(t, err)
	assert.True(t, claims.Admin)
}

func TestRefresh_LostRotation(t *testing.T) {
	// another request deletes the record between lookup and rotation
	var hm *hookedManager
	e := newEnv(t, withManager(func(rm repomanager.RepositoryManager) repomanager.RepositoryManager {
		hm = &hookedManager{RepositoryManager: rm}
		return hm
	}))
	u := e.register(t, "a@b.com", "x")
	s, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	hm.afterRefreshFind = func() {
		require.NoError(t, repomanager.NewSQLiteRepositoryManager().RefreshTokens(e.db).Delete(context.Background(), auth.HashToken(s.RefreshToken)))
	}

	_, err = e.svc.RefreshToken(context.Background(), s.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, "Invalid refresh token", PublicMessage(err), "must read like an unknown token")

	outcome, ok := RotationOutcomeOf(err)
	require.True(t, ok)
	assert.Equal(t, RotationLost, outcome)
	assert.Equal(t, 0, e.refreshTokenCount(t, u.ID), "no new lineage may be created")
}

func TestRefresh_AbortedRotationRollsBack(t *testing.T) {
	// delete succeeds, insert fails: the delete must not survive
	var hm *hookedManager
	e := newEnv(t, withManager(func(rm repomanager.RepositoryManager) repomanager.RepositoryManager {
		hm = &hookedManager{RepositoryManager: rm}
		return hm
	}))
	u := e.register(t, "a@b.com", "x")
	s, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	hm.failRefreshInTx = errors.New("insert failed")
	_, err = e.svc.RefreshToken(context.Background(), s.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	outcome, ok := RotationOutcomeOf(err)
	require.True(t, ok)
	assert.Equal(t, RotationAborted, outcome)
	assert.Equal(t, 1, e.refreshTokenCount(t, u.ID), "old record restored by rollback")

	hm.failRefreshInTx = nil
	_, err = e.svc.RefreshToken(context.Background(), s.RefreshToken)
	require.NoError(t, err)
}

// The sqlite store serialises the requests, so the losers fail at lookup;
// TestRefresh_LostRotation covers the race inside rotation. This only checks
// the final state.
func TestRefresh_ConcurrentUseLeavesOneRecord(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "a@b.com", "x")
	s, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = e.svc.RefreshToken(context.Background(), s.RefreshToken)
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, e.refreshTokenCount(t, u.ID))
}

// --- Forgot / Reset ---

func TestForgotPassword_KnownEmail(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")

	require.NoError(t, e.svc.ForgotPassword(context.Background(), "A@b.com"))

	sent := e.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@b.com", sent[0].To)
	assert.Equal(t, "Password reset", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "http://front.example/auth/reset-password?token=")

	code := e.resetCodeFromMail(t)
	rec, err := e.rm.OneTimeTokens(e.db).Find(context.Background(), auth.HashToken(code), models.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", rec.Email)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	e := newEnv(t)

	err := e.svc.ForgotPassword(context.Background(), "nobody@b.com")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, "User not found", PublicMessage(err))
	assert.Empty(t, e.notifier.all())

	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM one_time_tokens`).Scan(&n))
	assert.Zero(t, n)
}

func TestForgotPassword_NotifyUnknownEmail(t *testing.T) {
	settings := defaultSettings()
	settings.NotifyUnknownEmail = true
	e := newEnv(t, withSettings(settings))

	err := e.svc.ForgotPassword(context.Background(), "nobody@b.com")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Len(t, e.notifier.all(), 1, "mail goes out before the lookup")

	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM one_time_tokens`).Scan(&n))
	assert.Zero(t, n)
}

func TestForgotPassword_MalformedEmail(t *testing.T) {
	settings := defaultSettings()
	settings.NotifyUnknownEmail = true
	e := newEnv(t, withSettings(settings))

	for _, email := range []string{"not-an-email", "@b.com", "a@", "a b@c.com"} {
		err := e.svc.ForgotPassword(context.Background(), email)
		require.ErrorIs(t, err, common.ErrInvalidInput, email)
	}
	assert.Empty(t, e.notifier.all(), "nothing reaches the mailer")
}

func TestResetPassword_Success(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "a@b.com", "x")
	old, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	require.NoError(t, e.svc.ForgotPassword(context.Background(), "a@b.com"))
	code := e.resetCodeFromMail(t)

	require.NoError(t, e.svc.ResetPassword(context.Background(), code, "new"))

	_, err = e.svc.Login(context.Background(), "a@b.com", "new")
	require.NoError(t, err)
	_, err = e.svc.Login(context.Background(), "a@b.com", "x")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = e.svc.RefreshToken(context.Background(), old.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized, "sessions opened with the old password are revoked")
	assert.Equal(t, 1, e.refreshTokenCount(t, u.ID))
}

func TestResetPassword_CodeWorksOnce(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")
	require.NoError(t, e.svc.ForgotPassword(context.Background(), "a@b.com"))
	code := e.resetCodeFromMail(t)

	require.NoError(t, e.svc.ResetPassword(context.Background(), code, "new"))

	err := e.svc.ResetPassword(context.Background(), code, "newer")
	require.ErrorIs(t, err, common.ErrInvalidToken)
	assert.Equal(t, "Invalid token", PublicMessage(err))
}

func TestResetPassword_UnknownAndExpiredCodes(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")

	err := e.svc.ResetPassword(context.Background(), "never-issued", "new")
	require.ErrorIs(t, err, common.ErrInvalidToken)

	require.NoError(t, e.svc.ForgotPassword(context.Background(), "a@b.com"))
	code := e.resetCodeFromMail(t)
	e.clock.Advance(e.settings.OneTimeTokenTTL + time.Second)

	err = e.svc.ResetPassword(context.Background(), code, "new")
	require.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err, "password unchanged")
}

func TestResetPassword_EmptyPassword(t *testing.T) {
	e := newEnv(t)
	err := e.svc.ResetPassword(context.Background(), "code", "")
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestResetPassword_UserGone(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.rm.OneTimeTokens(e.db).Create(context.Background(), &models.OneTimeToken{
		CodeHash: auth.HashToken("orphan"), Email: "gone@b.com",
		Purpose: models.PurposePasswordReset, CreatedAt: e.clock.Now(),
	}))

	err := e.svc.ResetPassword(context.Background(), "orphan", "new")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, "User not found", PublicMessage(err))
}

func TestResetPassword_RevokesOtherCodes(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")
	require.NoError(t, e.svc.ForgotPassword(context.Background(), "a@b.com"))
	first := e.resetCodeFromMail(t)
	require.NoError(t, e.svc.ForgotPassword(context.Background(), "a@b.com"))
	second := e.resetCodeFromMail(t)
	require.NotEqual(t, first, second)

	require.NoError(t, e.svc.ResetPassword(context.Background(), second, "new"))

	err := e.svc.ResetPassword(context.Background(), first, "other")
	require.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = e.svc.Login(context.Background(), "a@b.com", "new")
	require.NoError(t, err)
}

func TestResetPassword_ConcurrentConsumptionRollsBack(t *testing.T) {
	var hm *hookedManager
	e := newEnv(t, withManager(func(rm repomanager.RepositoryManager) repomanager.RepositoryManager {
		hm = &hookedManager{RepositoryManager: rm}
		return hm
	}))
	e.register(t, "a@b.com", "x")
	require.NoError(t, e.svc.ForgotPassword(context.Background(), "a@b.com"))
	code := e.resetCodeFromMail(t)

	hm.afterCodeFind = func() {
		require.NoError(t, repomanager.NewSQLiteRepositoryManager().OneTimeTokens(e.db).Delete(context.Background(), auth.HashToken(code)))
	}

	err := e.svc.ResetPassword(context.Background(), code, "new")
	require.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err, "password update rolled back")
}

// --- Authenticate / Purge ---

func TestAuthenticate(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "a@b.com", "x")
	s, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	claims, err := e.svc.Authenticate(context.Background(), s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, err = e.svc.Authenticate(context.Background(), s.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	e.clock.Advance(e.settings.AccessTokenTTL)
	_, err = e.svc.Authenticate(context.Background(), s.AccessToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, "Invalid or expired session", PublicMessage(err))
}

func TestPurgeExpired(t *testing.T) {
	e := newEnv(t)
	e.register(t, "a@b.com", "x")
	_, err := e.svc.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)
	require.NoError(t, e.svc.ForgotPassword(context.Background(), "a@b.com"))

	refresh, codes, err := e.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, refresh)
	assert.Zero(t, codes)

	e.clock.Advance(e.settings.RefreshTokenTTL + time.Minute)

	refresh, codes, err = e.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, refresh)
	assert.EqualValues(t, 1, codes)
}

// --- end to end with the production hasher ---

func TestScenario_RegisterLoginForgotReset(t *testing.T) {
	e := newEnvWithHasher(t, auth.NewArgon2idHasher())
	ctx := context.Background()

	u, err := e.svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "x", PasswordConfirmation: "x"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$argon2id$"))

	_, err = e.svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "x", PasswordConfirmation: "x"})
	require.ErrorIs(t, err, common.ErrConflict)

	s, err := e.svc.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)

	_, err = e.svc.Login(ctx, "a@b.com", "y")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	require.ErrorIs(t, e.svc.ForgotPassword(ctx, "nobody@b.com"), common.ErrorNotFound)

	require.ErrorIs(t, e.svc.ResetPassword(ctx, "unknown", "z"), common.ErrInvalidToken)

	require.NoError(t, e.svc.ForgotPassword(ctx, "a@b.com"))
	require.NoError(t, e.svc.ResetPassword(ctx, e.resetCodeFromMail(t), "z"))

	_, err = e.svc.Login(ctx, "a@b.com", "z")
	require.NoError(t, err)
	_, err = e.svc.Login(ctx, "a@b.com", "x")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestStoreFailuresAreInternal(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.db.Close())

	_, err := e.svc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "x", PasswordConfirmation: "x"})
	require.ErrorIs(t, err, common.ErrorInternal)
	assert.Equal(t, "Internal server error", PublicMessage(err))
	assert.NotContains(t, PublicMessage(err), "closed")

	_, err = e.svc.Login(context.Background(), "a@b.com", "x")
	require.ErrorIs(t, err, common.ErrorInternal)

	err = e.svc.ForgotPassword(context.Background(), "a@b.com")
	require.ErrorIs(t, err, common.ErrorInternal)
}

func TestPublicMessage_PlainErrors(t *testing.T) {
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("boom")))
	assert.Equal(t, "Internal server error", PublicMessage(nil))
}

func TestRotationOutcome_String(t *testing.T) {
	assert.Equal(t, "committed", RotationCommitted.String())
	assert.Equal(t, "lost", RotationLost.String())
	assert.Equal(t, "aborted", RotationAborted.String())
	assert.Equal(t, "unknown", RotationOutcome(0).String())

	_, ok := RotationOutcomeOf(errors.New("plain"))
	assert.False(t, ok)
}
