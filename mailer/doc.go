// Package mailer delivers OTP codes for tsauth.
//
// [SMTPMailer] sends real mail through github.com/wneessen/go-mail.
// [LogMailer] writes the code to a slog logger and is meant for local
// development when no SMTP server is configured.
package mailer
