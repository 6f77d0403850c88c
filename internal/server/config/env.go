package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables they are read
// from. The names follow the deployment conventions of the existing service
// (DATABASE_URL, JWT_SECRET, MAIL_*).
var envBindings = map[string]string{
	"http_addr":                        "HTTP_ADDR",
	"database_driver":                  "DATABASE_DRIVER",
	"database_dsn":                     "DATABASE_URL",
	"secret_key":                       "JWT_SECRET",
	"frontend_url":                     "FRONTEND_URL",
	"access_token_validity_duration":   "ACCESS_TOKEN_TTL",
	"refresh_token_validity_duration":  "REFRESH_TOKEN_TTL",
	"one_time_token_length":            "RESET_TOKEN_LENGTH",
	"one_time_token_alphabet":          "RESET_TOKEN_ALPHABET",
	"one_time_token_validity_duration": "RESET_TOKEN_TTL",
	"notify_unknown_email":             "NOTIFY_UNKNOWN_EMAIL",
	"mail_host":                        "MAIL_SERVER",
	"mail_port":                        "MAIL_PORT",
	"mail_username":                    "MAIL_USERNAME",
	"mail_password":                    "MAIL_PASSWORD",
	"mail_from":                        "MAIL_FROM",
	"log_level":                        "LOG_LEVEL",
	"log_backend":                      "LOG_BACKEND",
	"cors_allowed_origins":             "CORS_ALLOWED_ORIGINS",
	"request_timeout":                  "REQUEST_TIMEOUT",
	"purge_interval":                   "PURGE_INTERVAL",
}

// parseEnv overlays config with every bound environment variable that is set.
// A value that does not parse is an error rather than a silent zero.
func parseEnv(config *Config) error {
	v := viper.New()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	str("http_addr", &config.HTTPAddr)
	str("database_driver", &config.DatabaseDriver)
	str("database_dsn", &config.DatabaseDSN)
	str("secret_key", &config.SecretKey)
	str("frontend_url", &config.FrontendURL)
	str("one_time_token_alphabet", &config.OneTimeTokenAlphabet)
	str("mail_host", &config.MailHost)
	str("mail_username", &config.MailUsername)
	str("mail_password", &config.MailPassword)
	str("mail_from", &config.MailFrom)
	str("log_level", &config.LogLevel)
	str("log_backend", &config.LogBackend)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"access_token_validity_duration", &config.AccessTokenValidityDuration},
		{"refresh_token_validity_duration", &config.RefreshTokenValidityDuration},
		{"one_time_token_validity_duration", &config.OneTimeTokenValidityDuration},
		{"request_timeout", &config.RequestTimeout},
		{"purge_interval", &config.PurgeInterval},
	}
	for _, d := range durations {
		if !v.IsSet(d.key) {
			continue
		}
		val, err := cast.ToDurationE(v.Get(d.key))
		if err != nil {
			return fmt.Errorf("env %s: %w", envBindings[d.key], err)
		}
		*d.dst = val
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"one_time_token_length", &config.OneTimeTokenLength},
		{"mail_port", &config.MailPort},
	}
	for _, i := range ints {
		if !v.IsSet(i.key) {
			continue
		}
		val, err := cast.ToIntE(v.Get(i.key))
		if err != nil {
			return fmt.Errorf("env %s: %w", envBindings[i.key], err)
		}
		*i.dst = val
	}

	if v.IsSet("notify_unknown_email") {
		val, err := cast.ToBoolE(v.Get("notify_unknown_email"))
		if err != nil {
			return fmt.Errorf("env %s: %w", envBindings["notify_unknown_email"], err)
		}
		config.NotifyUnknownEmail = val
	}
	if v.IsSet("cors_allowed_origins") {
		config.CORSAllowedOrigins = splitList(v.GetString("cors_allowed_origins"))
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
