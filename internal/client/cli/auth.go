package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/reservation/internal/client/client"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// report prints a command failure. Server messages are shown as-is.
func (a *App) report(err error) error {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		printlnFn("Error:", apiErr.Message)
	case errors.Is(err, client.ErrUnavailable):
		printlnFn("Server unavailable, try again later")
	case errors.Is(err, client.ErrNotLoggedIn):
		printlnFn("Please log in first")
	default:
		printlnFn("Error:", err)
	}
	return err
}

func (a *App) prompt(text string) (string, error) {
	return getSimpleText(a.reader, text, a.out)
}

// Register prompts for the account details and creates the account.
// The passwords are wiped before returning.
func (a *App) Register(ctx context.Context) error {
	var req client.RegisterRequest
	var err error

	fields := []struct {
		prompt string
		dst    *string
	}{
		{"Enter email", &req.Email},
		{"Enter first name", &req.FirstName},
		{"Enter last name", &req.LastName},
		{"Enter phone number", &req.PhoneNumber},
	}
	for _, f := range fields {
		if *f.dst, err = a.prompt(f.prompt); err != nil {
			return err
		}
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer wipe(password)

	confirmation, err := getPassword(a.out, "Repeat password")
	if err != nil {
		return err
	}
	defer wipe(confirmation)

	req.Password = string(password)
	req.PasswordConfirmation = string(confirmation)

	acc, err := a.api.Register(ctx, req)
	if err != nil {
		return a.report(err)
	}
	printlnFn(fmt.Sprintf("%s (id %d)", acc.Message, acc.ID))
	return nil
}

// Login prompts for credentials and opens a session.
func (a *App) Login(ctx context.Context) error {
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer wipe(password)

	acc, err := a.api.Login(ctx, email, string(password))
	if err != nil {
		return a.report(err)
	}
	a.userName = acc.Email
	printlnFn(acc.Message)
	return nil
}

// Refresh rotates the session tokens.
func (a *App) Refresh(ctx context.Context) error {
	if err := a.api.Refresh(ctx); err != nil {
		return a.report(err)
	}
	printlnFn("Token refreshed")
	return nil
}

// Forgot asks the server to mail a password reset link.
func (a *App) Forgot(ctx context.Context) error {
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	msg, err := a.api.ForgotPassword(ctx, email)
	if err != nil {
		return a.report(err)
	}
	printlnFn(msg)
	return nil
}

// Reset sets a new password using the code from the reset link.
func (a *App) Reset(ctx context.Context) error {
	code, err := a.prompt("Enter reset code")
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter new password")
	if err != nil {
		return err
	}
	defer wipe(password)

	msg, err := a.api.ResetPassword(ctx, code, string(password))
	if err != nil {
		return a.report(err)
	}
	printlnFn(msg)
	return nil
}

// Me shows the account behind the current session.
func (a *App) Me(ctx context.Context) error {
	s, err := a.api.Me(ctx)
	if err != nil {
		return a.report(err)
	}
	role := "user"
	if s.Admin {
		role = "admin"
	}
	printlnFn(fmt.Sprintf("%s (id %d, %s)", s.Email, s.ID, role))
	return nil
}

// Logout drops the local session.
func (a *App) Logout(context.Context) error {
	a.api.Logout()
	a.userName = ""
	printlnFn("Logged out")
	return nil
}
