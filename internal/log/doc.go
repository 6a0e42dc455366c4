// Package log builds the slog loggers of gridwatch.
//
// Every logger masks secrets before a record is written. gridwatch holds
// the session cookie and custom headers of the monitored page, the chat bot
// token, the webhook URL and the AI API key. They are masked when
//   - an attribute key names a secret (cookie, authorization, webhook_url)
//   - a value looks like one (bearer tokens, JWTs, bot tokens, API keys)
//   - a configured secret value appears anywhere in a message or attribute
//
// Bot tokens inside request URLs and credentials in URLs are masked in
// error messages as well. Verbose mode masks the same values.
//
//	logger := log.New(os.Stderr,
//	    log.WithVerbose(true),
//	    log.WithSecrets(cfg.Secrets()...),
//	)
//	slog.SetDefault(logger)
package log
