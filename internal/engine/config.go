package engine

import "deskagent/internal/session"

// Config holds the engine's tunable options. Zero-valued fields fall back
// to DefaultConfig's values, except ContactConfirmEnabled, which is used as
// given (so a zero-value Config turns contact confirmation off).
type Config struct {
	BusinessName string
	Language     string

	FAQThreshold     float64
	MaxMessageLength int
	MaxSlotsProposed int
	ConfirmRetryMax  int
	MaxTurnsAntiLoop int
	MaxContextFails  int

	// ContactConfirmEnabled gates contact confirmation: when true (the
	// default), a caller_id on file routes through CONTACT_CONFIRM before
	// slot proposal; when false, the engine always asks the qualification
	// contact question explicitly instead.
	ContactConfirmEnabled bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BusinessName:           "notre cabinet",
		Language:               "fr",
		FAQThreshold:           0.80,
		MaxMessageLength:       500,
		MaxSlotsProposed:       3,
		ConfirmRetryMax:        1,
		MaxTurnsAntiLoop:       session.MaxTurns,
		MaxContextFails:        session.MaxContextFails,
		ContactConfirmEnabled:  true,
	}
}

// withDefaults fills every zero-valued field except ContactConfirmEnabled
// with its documented default, so a caller-supplied Config{FAQThreshold: 0.9}
// doesn't accidentally zero out the numeric and string options;
// ContactConfirmEnabled is copied as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BusinessName != "" {
		d.BusinessName = c.BusinessName
	}
	if c.Language != "" {
		d.Language = c.Language
	}
	if c.FAQThreshold != 0 {
		d.FAQThreshold = c.FAQThreshold
	}
	if c.MaxMessageLength != 0 {
		d.MaxMessageLength = c.MaxMessageLength
	}
	if c.MaxSlotsProposed != 0 {
		d.MaxSlotsProposed = c.MaxSlotsProposed
	}
	if c.ConfirmRetryMax != 0 {
		d.ConfirmRetryMax = c.ConfirmRetryMax
	}
	if c.MaxTurnsAntiLoop != 0 {
		d.MaxTurnsAntiLoop = c.MaxTurnsAntiLoop
	}
	if c.MaxContextFails != 0 {
		d.MaxContextFails = c.MaxContextFails
	}
	d.ContactConfirmEnabled = c.ContactConfirmEnabled
	return d
}
