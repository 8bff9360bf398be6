// Package mail delivers password-reset codes, either directly over SMTP or
// through a queue drained by the worker.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/apperr"
)

const otpSubject = "Password Reset OTP - CodeGenie AI"

// ErrDisabled is returned when no mail transport is configured.
var ErrDisabled = apperr.New(apperr.ErrUpstream, "mail delivery is not configured")

// OTPMessage is a reset code addressed to one recipient.
type OTPMessage struct {
	To           string `json:"to"`
	Code         string `json:"code"`
	ValidMinutes int    `json:"valid_minutes"`
}

// NewOTPMessage builds a message for a code valid for validity.
func NewOTPMessage(to, code string, validity time.Duration) OTPMessage {
	return OTPMessage{To: to, Code: code, ValidMinutes: int(validity.Round(time.Minute) / time.Minute)}
}

// Body renders the plain-text mail body.
func (m OTPMessage) Body() string {
	return fmt.Sprintf("Your OTP for password reset is: %s\n\nThis OTP is valid for %d minutes.", m.Code, m.ValidMinutes)
}

// Mailer sends reset codes.
type Mailer interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

// NopMailer drops every message.
type NopMailer struct{}

func (NopMailer) SendOTP(context.Context, OTPMessage) error { return ErrDisabled }

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer authenticates with PLAIN and lets net/smtp upgrade the
// connection with STARTTLS.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send sendFunc
}

// NewSMTPMailer returns an SMTP mailer, or a NopMailer when credentials
// are missing.
func NewSMTPMailer(cfg config.SMTPConfig) Mailer {
	if !cfg.Enabled() {
		return NopMailer{}
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendOTP(ctx context.Context, msg OTPMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return apperr.New(apperr.ErrInvalidInput, "recipient is required")
	}

	addr := net.JoinHostPort(m.cfg.Server, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.Email, m.cfg.Password, m.cfg.Server)
	if err := m.send(addr, auth, m.cfg.Email, []string{msg.To}, m.render(msg)); err != nil {
		return apperr.Wrap(apperr.ErrUpstream, "send otp mail", err)
	}
	return nil
}

func (m *SMTPMailer) render(msg OTPMessage) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.cfg.Email + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + otpSubject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body(), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
