package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/reservation/internal/flagx"
	"github.com/dmitrijs2005/reservation/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Pointer and
// zero-value fields are only copied when present, so a partial file
// overlays defaults instead of wiping them.
type JsonConfig struct {
	HTTPAddr                     string          `json:"http_addr"`
	DatabaseDriver               string          `json:"database_driver"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	FrontendURL                  string          `json:"frontend_url"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	OneTimeTokenLength           int             `json:"one_time_token_length"`
	OneTimeTokenAlphabet         string          `json:"one_time_token_alphabet"`
	OneTimeTokenValidityDuration *timex.Duration `json:"one_time_token_validity_duration"`
	NotifyUnknownEmail           *bool           `json:"notify_unknown_email"`
	MailHost                     string          `json:"mail_host"`
	MailPort                     int             `json:"mail_port"`
	MailUsername                 string          `json:"mail_username"`
	MailPassword                 string          `json:"mail_password"`
	MailFrom                     string          `json:"mail_from"`
	LogLevel                     string          `json:"log_level"`
	LogBackend                   string          `json:"log_backend"`
	CORSAllowedOrigins           []string        `json:"cors_allowed_origins"`
	RequestTimeout               *timex.Duration `json:"request_timeout"`
	PurgeInterval                *timex.Duration `json:"purge_interval"`
}

// parseJson loads the file named by -c/-config, if any, into config.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config %s: %w", jsonConfigFile, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.OneTimeTokenAlphabet, c.OneTimeTokenAlphabet)
	setString(&config.MailHost, c.MailHost)
	setString(&config.MailUsername, c.MailUsername)
	setString(&config.MailPassword, c.MailPassword)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogBackend, c.LogBackend)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.OneTimeTokenValidityDuration != nil {
		config.OneTimeTokenValidityDuration = c.OneTimeTokenValidityDuration.Duration
	}
	if c.RequestTimeout != nil {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	if c.PurgeInterval != nil {
		config.PurgeInterval = c.PurgeInterval.Duration
	}
	if c.OneTimeTokenLength != 0 {
		config.OneTimeTokenLength = c.OneTimeTokenLength
	}
	if c.MailPort != 0 {
		config.MailPort = c.MailPort
	}
	if c.NotifyUnknownEmail != nil {
		config.NotifyUnknownEmail = *c.NotifyUnknownEmail
	}
	if c.CORSAllowedOrigins != nil {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
