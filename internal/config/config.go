package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL  string             `mapstructure:"database_url"`
	ServerPort   string             `mapstructure:"server_port"`
	JWTSecret    string             `mapstructure:"jwt_secret"`
	AppBaseURL   string             `mapstructure:"app_base_url"`
	Email        EmailConfig        `mapstructure:"email"`
	Stripe       StripeConfig       `mapstructure:"stripe"`
	Registration RegistrationConfig `mapstructure:"registration"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
}

type EmailConfig struct {
	From              string `mapstructure:"from"`
	SMTPHost          string `mapstructure:"smtp_host"`
	SMTPPort          int    `mapstructure:"smtp_port"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	InviteURLTemplate string `mapstructure:"invite_url_template"`
	VerifyURLTemplate string `mapstructure:"verify_url_template"`
	ResetURLTemplate  string `mapstructure:"reset_url_template"`
}

type StripeConfig struct {
	SecretKey       string            `mapstructure:"secret_key"`
	WebhookSecret   string            `mapstructure:"webhook_secret"`
	SuccessURL      string            `mapstructure:"success_url"`
	CancelURL       string            `mapstructure:"cancel_url"`
	PortalReturnURL string            `mapstructure:"portal_return_url"`
	PriceIDs        map[string]string `mapstructure:"price_ids"`
}

type RegistrationConfig struct {
	// OnCheckFailure controls what happens when the domain-existence check
	// itself fails: "allow" proceeds with registration, "deny" rejects it.
	OnCheckFailure string        `mapstructure:"on_check_failure"`
	TrialPeriod    time.Duration `mapstructure:"trial_period"`
	InviteTTL      time.Duration `mapstructure:"invite_ttl"`
}

type RateLimitConfig struct {
	AuthPerMinute int `mapstructure:"auth_per_minute"`
	AuthBurst     int `mapstructure:"auth_burst"`
}

const (
	CheckFailureAllow = "allow"
	CheckFailureDeny  = "deny"
)

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.AppBaseURL == "" {
		config.AppBaseURL = "http://localhost:3000"
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Email.InviteURLTemplate == "" {
		config.Email.InviteURLTemplate = config.AppBaseURL + "/accept-invite?token=%s"
	}
	if config.Email.VerifyURLTemplate == "" {
		config.Email.VerifyURLTemplate = config.AppBaseURL + "/verify-email?token=%s"
	}
	if config.Email.ResetURLTemplate == "" {
		config.Email.ResetURLTemplate = config.AppBaseURL + "/reset-password?token=%s"
	}

	if config.Stripe.SuccessURL == "" {
		config.Stripe.SuccessURL = config.AppBaseURL + "/dashboard?success=true"
	}
	if config.Stripe.CancelURL == "" {
		config.Stripe.CancelURL = config.AppBaseURL + "/pricing?canceled=true"
	}
	if config.Stripe.PortalReturnURL == "" {
		config.Stripe.PortalReturnURL = config.AppBaseURL + "/dashboard"
	}

	switch strings.ToLower(strings.TrimSpace(config.Registration.OnCheckFailure)) {
	case "":
		config.Registration.OnCheckFailure = CheckFailureAllow
	case CheckFailureAllow, CheckFailureDeny:
		config.Registration.OnCheckFailure = strings.ToLower(config.Registration.OnCheckFailure)
	default:
		log.Fatalf("registration.on_check_failure must be %q or %q", CheckFailureAllow, CheckFailureDeny)
	}
	if config.Registration.TrialPeriod == 0 {
		config.Registration.TrialPeriod = 14 * 24 * time.Hour
	}
	if config.Registration.InviteTTL == 0 {
		config.Registration.InviteTTL = 7 * 24 * time.Hour
	}

	if config.RateLimit.AuthPerMinute == 0 {
		config.RateLimit.AuthPerMinute = 10
	}
	if config.RateLimit.AuthBurst == 0 {
		config.RateLimit.AuthBurst = 5
	}

	return &config
}
