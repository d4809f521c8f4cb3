package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/smtp"
	"time"
)

const (
	codeDigits = 6
	keyPrefix  = "otp:"
)

var ErrInvalidCode = errors.New("invalid or expired code")

// Sender delivers a code to the owner of an email address.
type Sender interface {
	Send(ctx context.Context, email, code string) error
}

// LogSender writes codes to the log instead of mailing them.
type LogSender struct {
	log *log.Logger
}

func NewLogSender(logger *log.Logger) *LogSender {
	return &LogSender{log: logger}
}

func (s *LogSender) Send(_ context.Context, email, code string) error {
	s.log.Printf("one-time code for %s: %s", email, code)
	return nil
}

// SMTPSender mails codes through an SMTP relay.
type SMTPSender struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns a sender for the relay at host:port. Authentication
// is skipped when username is empty.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	var a smtp.Auth
	if username != "" {
		a = smtp.PlainAuth("", username, password, host)
	}

	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", host, port),
		from:     from,
		auth:     a,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) message(email, code string) []byte {
	return []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: Your one-time code\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"Your code is: %s\r\n"+
		"It expires shortly. If you did not ask for it, ignore this message.\r\n",
		s.from, email, code))
}

func (s *SMTPSender) Send(ctx context.Context, email, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.sendMail(s.addr, s.auth, s.from, []string{email}, s.message(email, code)); err != nil {
		return fmt.Errorf("send mail to %s: %w", email, err)
	}
	return nil
}

type Service struct {
	log    *log.Logger
	store  KeyValueStore
	sender Sender
	ttl    time.Duration
}

func NewService(logger *log.Logger, store KeyValueStore, sender Sender, ttl time.Duration) *Service {
	return &Service{log: logger, store: store, sender: sender, ttl: ttl}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()+100000), nil
}

// RequestCode stores a fresh code for email, replacing any earlier one, and
// hands it to the sender.
func (s *Service) RequestCode(ctx context.Context, email string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	if err := s.store.SetEx(ctx, keyPrefix+email, code, s.ttl); err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	if err := s.sender.Send(ctx, email, code); err != nil {
		return fmt.Errorf("send code: %w", err)
	}

	return nil
}

// VerifyCode checks code against the stored one and consumes it on success.
func (s *Service) VerifyCode(ctx context.Context, email, code string) error {
	stored, err := s.store.Get(ctx, keyPrefix+email)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("get code: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidCode
	}

	if err := s.store.Del(ctx, keyPrefix+email); err != nil {
		s.log.Printf("delete used code for %s: %v", email, err)
	}

	return nil
}
