package common

const (
	// AuthorizationHeaderName carries the access token on protected routes.
	AuthorizationHeaderName = "Authorization"

	// BearerScheme is the only accepted authorization scheme.
	BearerScheme = "Bearer"
)
