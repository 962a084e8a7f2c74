package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/service"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type Config struct {
	MainSite    string // Required: public base URL used in mailed links
	AppName     string // Optional: application name shown in emails (default: orgauth)
	EmailDomain string // Optional: domain outbound mail is sent from
	AdminEmail  string // Optional: receives registration and invite notifications

	DatabaseFile string        // Optional: path to SQLite database file (default: ./orgauth.db)
	BusyTimeout  time.Duration // Optional: SQLite busy timeout (default: 5s)

	RegenLoginTokens      bool          // Optional: rotate login tokens on page load (default: true)
	LoginTokenExpiration  time.Duration // Optional: 0 disables expiry (default: 30 days)
	EmailTokenExpiration  time.Duration // Optional (default: 1h)
	ResetTokenExpiration  time.Duration // Optional (default: 1h)
	InviteTokenExpiration time.Duration // Optional (default: 7 days)
	RegenGrace            time.Duration // Optional: how long a rotated token keeps working (default: 10s)

	// TokenClassExpirations gives named token classes their own window,
	// e.g. "api=720h,device=0". Unlisted classes use LoginTokenExpiration.
	TokenClassExpirations map[string]time.Duration

	OpenRegistration   bool   // Optional (default: false)
	SendEmails         bool   // Optional: confirm registrations by email (default: false)
	NonAdminInvite     bool   // Optional: let any user mint invites (default: false)
	RemoteRegistration bool   // Optional: allow registering against a peer instance (default: false)
	UserURIPath        string // Optional: user endpoint path on peers (default: /user)
	CookieSecure       bool   // Optional: mark the session cookie Secure (default: true)

	AdminUser     string // Optional: first admin created on an empty database
	AdminPassword string // Optional: generated and logged once when empty

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		MainSite:    getEnvOrDefault("ORGAUTH_MAINSITE", "http://localhost:8080"),
		AppName:     getEnvOrDefault("ORGAUTH_APPNAME", "orgauth"),
		EmailDomain: os.Getenv("ORGAUTH_EMAIL_DOMAIN"),
		AdminEmail:  os.Getenv("ORGAUTH_ADMIN_EMAIL"),

		DatabaseFile: getEnvOrDefault("ORGAUTH_DATABASE_FILE", "orgauth.db"),
		BusyTimeout:  getEnvDurationOrDefault("ORGAUTH_BUSY_TIMEOUT", 5*time.Second),

		RegenLoginTokens:      getEnvBoolOrDefault("ORGAUTH_REGEN_LOGIN_TOKENS", true),
		LoginTokenExpiration:  getEnvDurationOrDefault("ORGAUTH_LOGIN_TOKEN_EXPIRATION", 30*24*time.Hour),
		EmailTokenExpiration:  getEnvDurationOrDefault("ORGAUTH_EMAIL_TOKEN_EXPIRATION", time.Hour),
		ResetTokenExpiration:  getEnvDurationOrDefault("ORGAUTH_RESET_TOKEN_EXPIRATION", time.Hour),
		InviteTokenExpiration: getEnvDurationOrDefault("ORGAUTH_INVITE_TOKEN_EXPIRATION", 7*24*time.Hour),
		RegenGrace:            getEnvDurationOrDefault("ORGAUTH_REGEN_GRACE", service.DefaultRegenGrace),
		TokenClassExpirations: parseClassExpirations(os.Getenv("ORGAUTH_TOKEN_CLASS_EXPIRATIONS")),

		OpenRegistration:   getEnvBoolOrDefault("ORGAUTH_OPEN_REGISTRATION", false),
		SendEmails:         getEnvBoolOrDefault("ORGAUTH_SEND_EMAILS", false),
		NonAdminInvite:     getEnvBoolOrDefault("ORGAUTH_NON_ADMIN_INVITE", false),
		RemoteRegistration: getEnvBoolOrDefault("ORGAUTH_REMOTE_REGISTRATION", false),
		UserURIPath:        getEnvOrDefault("ORGAUTH_USER_URI_PATH", "/user"),
		CookieSecure:       getEnvBoolOrDefault("ORGAUTH_COOKIE_SECURE", true),

		AdminUser:     os.Getenv("ORGAUTH_ADMIN_USER"),
		AdminPassword: os.Getenv("ORGAUTH_ADMIN_PASSWORD"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MainSite, validation.Required, is.URL),
		validation.Field(&c.AdminEmail, is.EmailFormat),
		validation.Field(&c.EmailDomain, is.Domain),
		validation.Field(&c.DatabaseFile, validation.Required),
		validation.Field(&c.UserURIPath, validation.Required, validation.By(startsWithSlash)),
		validation.Field(&c.LoginTokenExpiration, validation.Min(time.Duration(0))),
		validation.Field(&c.EmailTokenExpiration, validation.Min(time.Duration(0))),
		validation.Field(&c.ResetTokenExpiration, validation.Min(time.Duration(0))),
		validation.Field(&c.InviteTokenExpiration, validation.Min(time.Duration(0))),
		validation.Field(&c.RegenGrace, validation.Min(time.Duration(0))),
		validation.Field(&c.TokenClassExpirations, validation.By(nonNegativeWindows)),
		validation.Field(&c.LogFormat, validation.In("json", "text")),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// Service returns the engine configuration.
func (c Config) Service() service.Config {
	return service.Config{
		MainSite:              c.MainSite,
		AppName:               c.AppName,
		AdminEmail:            c.AdminEmail,
		RegenLoginTokens:      c.RegenLoginTokens,
		LoginTokenExpiration:  c.LoginTokenExpiration,
		EmailTokenExpiration:  c.EmailTokenExpiration,
		ResetTokenExpiration:  c.ResetTokenExpiration,
		InviteTokenExpiration: c.InviteTokenExpiration,
		RegenGrace:            c.RegenGrace,
		ClassExpirations:      c.TokenClassExpirations,
		OpenRegistration:      c.OpenRegistration,
		SendEmails:            c.SendEmails,
		NonAdminInvite:        c.NonAdminInvite,
		RemoteRegistration:    c.RemoteRegistration,
	}
}

func startsWithSlash(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "/") {
		return errors.New("must start with /")
	}
	return nil
}

func nonNegativeWindows(value any) error {
	windows, _ := value.(map[string]time.Duration)
	for class, w := range windows {
		if w < 0 {
			return fmt.Errorf("class %q must not have a negative window", class)
		}
	}
	return nil
}

// parseClassExpirations reads "class=duration" pairs separated by commas.
// Durations take the same forms as the other expirations. Malformed pairs
// are skipped.
func parseClassExpirations(value string) map[string]time.Duration {
	out := map[string]time.Duration{}
	for _, pair := range strings.Split(value, ",") {
		class, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		class = strings.TrimSpace(class)
		if !ok || class == "" {
			continue
		}
		w, err := parseDuration(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		out[class] = w
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := parseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}

func parseDuration(value string) (time.Duration, error) {
	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration, nil
	}

	// Try parsing as integer minutes (for backwards compatibility)
	minutes, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return time.Duration(minutes) * time.Minute, nil
}
