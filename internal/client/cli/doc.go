// Package cli provides the interactive reservation command-line client.
//
// It wires configuration, the HTTP API client and a REPL. Passwords are read
// from the terminal without echo and wiped after use.
//
// Commands:
//   - register, login, forgot, reset (always available)
//   - me, refresh, logout (after login)
//   - help, exit
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
