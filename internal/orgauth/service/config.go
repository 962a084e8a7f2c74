package service

import (
	"sort"
	"strings"
	"time"
)

// DefaultRegenGrace is how long a superseded login token keeps working after
// a rotation marked it.
const DefaultRegenGrace = 10 * time.Second

// Config carries the engine's behavioral switches. Zero expirations disable
// the matching expiry check.
type Config struct {
	// MainSite is the public base URL used to build links sent by email.
	MainSite string
	AppName  string

	// AdminEmail receives notifications about registrations and accepted
	// invites. Empty disables them.
	AdminEmail string

	RegenLoginTokens      bool
	LoginTokenExpiration  time.Duration
	EmailTokenExpiration  time.Duration
	ResetTokenExpiration  time.Duration
	InviteTokenExpiration time.Duration
	RegenGrace            time.Duration

	// ClassExpirations gives tokens of a named class their own window.
	// Classes not listed share LoginTokenExpiration. A zero window never
	// expires.
	ClassExpirations map[string]time.Duration

	OpenRegistration   bool
	SendEmails         bool
	NonAdminInvite     bool
	RemoteRegistration bool
}

func (c Config) grace() time.Duration {
	if c.RegenGrace <= 0 {
		return DefaultRegenGrace
	}
	return c.RegenGrace
}

func (c Config) mainSite() string {
	return strings.TrimSuffix(c.MainSite, "/")
}

// tokenWindow is the expiration that applies to tokens of class.
func (c Config) tokenWindow(class string) time.Duration {
	if class != "" {
		if w, ok := c.ClassExpirations[class]; ok {
			return w
		}
	}
	return c.LoginTokenExpiration
}

// sweptClasses lists the classes with their own window, which the plain
// login sweep leaves alone.
func (c Config) sweptClasses() []string {
	classes := make([]string, 0, len(c.ClassExpirations))
	for class := range c.ClassExpirations {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}
