// Package client is the HTTP side of the reservation CLI.
//
// HTTPClient wraps the /auth endpoints, holds the access and refresh tokens
// returned by login, and transparently refreshes an expired access token once
// before giving up. Server answers outside 2xx come back as *APIError; a 401
// also matches ErrUnauthorized, and transport failures wrap ErrUnavailable.
package client
