package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/reservation/internal/client/client"
	"github.com/dmitrijs2005/reservation/internal/client/config"
)

// authAPI is the part of client.HTTPClient the commands need.
type authAPI interface {
	Register(ctx context.Context, req client.RegisterRequest) (*client.Account, error)
	Login(ctx context.Context, email, password string) (*client.Account, error)
	Refresh(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, password string) (string, error)
	Me(ctx context.Context) (*client.Session, error)
	Logout()
	LoggedIn() bool
}

type App struct {
	config   *config.Config
	api      authAPI
	reader   *bufio.Reader
	out      io.Writer
	userName string
}

func NewApp(c *config.Config) (*App, error) {
	api, err := client.NewHTTPClient(c.ServerURL, c.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &App{config: c, api: api, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

// Run blocks in the REPL until the user exits or stdin closes.
func (a *App) Run(ctx context.Context) {
	printlnFn(fmt.Sprintf("Reservation CLI, server %s (type 'help' for commands)", a.config.ServerURL))
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.api.LoggedIn()
}

func (a *App) getStatus() string {
	if a.userName == "" || !a.isLoggedIn() {
		return "(guest)"
	}
	return fmt.Sprintf("(%s)", a.userName)
}
