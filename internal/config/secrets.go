package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Adjudicator
	out.Adjudicator = cfg.Adjudicator
	redact(&out.Adjudicator.PrivateKey)
	redact(&out.Adjudicator.KeyPassword)

	// Registry
	out.Registry = cfg.Registry
	redact(&out.Registry.DSN)
	redact(&out.Registry.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// CoinGecko
	out.CoinGecko = cfg.CoinGecko
	redact(&out.CoinGecko.APIKey)

	// Moltbook
	out.Moltbook = cfg.Moltbook
	redact(&out.Moltbook.APIKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
