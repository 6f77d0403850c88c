package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/reservation/internal/dbx"
	"github.com/dmitrijs2005/reservation/internal/logging"
	"github.com/dmitrijs2005/reservation/internal/server/auth"
	"github.com/dmitrijs2005/reservation/internal/server/models"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/onetimetokens"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/sqlitetest"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// plainHasher keeps tests fast; the argon2id hasher has its own tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return "plain:" + password, nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	stored, ok := strings.CutPrefix(hash, "plain:")
	if !ok {
		return false, errors.New("unknown hash format")
	}
	return stored == password, nil
}

func (plainHasher) NeedsUpgrade(string) bool { return false }

type seqCodes struct {
	mu sync.Mutex
	n  int
}

func (g *seqCodes) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("code%016d", g.n), nil
}

type notification struct {
	To, Subject, Body string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(to, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{to, subject, body})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type env struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	svc      *AuthService
	clock    *fakeClock
	codec    *auth.Codec
	notifier *recordingNotifier
	settings Settings
}

func defaultSettings() Settings {
	return Settings{
		AccessTokenTTL:  24 * time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		OneTimeTokenTTL: time.Hour,
		FrontendURL:     "http://front.example/",
	}
}

type envOption func(*env)

func withSettings(s Settings) envOption { return func(e *env) { e.settings = s } }

func withManager(wrap func(repomanager.RepositoryManager) repomanager.RepositoryManager) envOption {
	return func(e *env) { e.rm = wrap(e.rm) }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	return newEnvWithHasher(t, plainHasher{}, opts...)
}

func newEnvWithHasher(t *testing.T, hasher auth.PasswordHasher, opts ...envOption) *env {
	t.Helper()

	e := &env{
		db:       sqlitetest.Open(t),
		rm:       repomanager.NewSQLiteRepositoryManager(),
		clock:    &fakeClock{t: time.Now().UTC().Truncate(time.Second)},
		notifier: &recordingNotifier{},
		settings: defaultSettings(),
	}
	for _, opt := range opts {
		opt(e)
	}

	codec, err := auth.NewCodec([]byte("test-secret"), auth.WithClock(e.clock.Now))
	require.NoError(t, err)
	e.codec = codec

	e.svc = NewAuthService(e.db, e.rm, hasher, codec, &seqCodes{}, e.notifier, logging.Nop{}, e.settings, WithClock(e.clock.Now))
	return e
}

func (e *env) register(t *testing.T, email, password string) *models.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), RegisterInput{
		Email: email, Password: password, PasswordConfirmation: password,
		FirstName: "Ann", LastName: "Lee", PhoneNumber: "+100",
	})
	require.NoError(t, err)
	return u
}

func (e *env) refreshTokenCount(t *testing.T, userID int64) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?`, userID).Scan(&n))
	return n
}

func (e *env) resetCodeFromMail(t *testing.T) string {
	t.Helper()
	sent := e.notifier.all()
	require.NotEmpty(t, sent)
	body := sent[len(sent)-1].Body
	_, after, ok := strings.Cut(body, "?token=")
	require.True(t, ok, "reset link missing in %q", body)
	return strings.TrimSuffix(after, "</a>")
}

// hookedManager lets a test act between the service's reads and its
// transaction, the window a concurrent request would use.
type hookedManager struct {
	repomanager.RepositoryManager
	afterRefreshFind func()
	afterCodeFind    func()
	failRefreshInTx  error
}

func (m *hookedManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return &hookedRefreshRepo{Repository: m.RepositoryManager.RefreshTokens(db), m: m, inTx: isTx(db)}
}

func (m *hookedManager) OneTimeTokens(db dbx.DBTX) onetimetokens.Repository {
	return &hookedCodeRepo{Repository: m.RepositoryManager.OneTimeTokens(db), m: m}
}

func isTx(db dbx.DBTX) bool {
	_, ok := db.(*sql.Tx)
	return ok
}

type hookedRefreshRepo struct {
	refreshtokens.Repository
	m    *hookedManager
	inTx bool
}

func (r *hookedRefreshRepo) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	rec, err := r.Repository.Find(ctx, tokenHash)
	if err == nil && r.m.afterRefreshFind != nil {
		r.m.afterRefreshFind()
	}
	return rec, err
}

func (r *hookedRefreshRepo) Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	if r.inTx && r.m.failRefreshInTx != nil {
		return r.m.failRefreshInTx
	}
	return r.Repository.Create(ctx, userID, tokenHash, expiresAt)
}

type hookedCodeRepo struct {
	onetimetokens.Repository
	m *hookedManager
}

func (r *hookedCodeRepo) Find(ctx context.Context, codeHash, purpose string) (*models.OneTimeToken, error) {
	rec, err := r.Repository.Find(ctx, codeHash, purpose)
	if err == nil && r.m.afterCodeFind != nil {
		r.m.afterCodeFind()
	}
	return rec, err
}
