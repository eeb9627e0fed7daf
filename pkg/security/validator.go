package security

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// ErrInvalidCredentials is returned by validators rejecting a credential.
var ErrInvalidCredentials = errors.New("invalid username or password")

// CredentialValidator checks a username/password pair. A nil error accepts
// the credential. Hosts supply the implementation.
type CredentialValidator interface {
	Validate(ctx context.Context, username, password string) error
}

// CredentialValidatorFunc adapts a function to CredentialValidator.
type CredentialValidatorFunc func(ctx context.Context, username, password string) error

// Validate calls f.
func (f CredentialValidatorFunc) Validate(ctx context.Context, username, password string) error {
	return f(ctx, username, password)
}

// StaticCredentials accepts a fixed set of username/password pairs.
type StaticCredentials map[string]string

// Validate compares the password in constant time.
func (s StaticCredentials) Validate(_ context.Context, username, password string) error {
	want, ok := s[username]
	match := subtle.ConstantTimeCompare([]byte(password), []byte(want)) == 1
	if !ok || !match {
		return ErrInvalidCredentials
	}
	return nil
}

// Authenticate runs v and maps a rejection to a security validation error.
func Authenticate(ctx context.Context, v CredentialValidator, username, password string) error {
	if v == nil {
		return fault.New(fault.KindSecurityValidation, "security.Authenticate", "no credential validator configured")
	}
	if err := v.Validate(ctx, username, password); err != nil {
		return fault.Wrap(fault.KindSecurityValidation, "security.Authenticate", err)
	}
	return nil
}

// AuthenticateToken checks the UsernameToken of msg with v. It fails when
// the token is missing, stale or rejected.
func AuthenticateToken(ctx context.Context, v CredentialValidator, msg *message.Message, now time.Time) (string, error) {
	tok, ok, err := ReadUsernameToken(msg)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fault.New(fault.KindSecurityValidation, "security.AuthenticateToken", "message carries no username token")
	}
	if err := tok.Fresh(now); err != nil {
		return "", err
	}
	if err := Authenticate(ctx, v, tok.Username, tok.Password); err != nil {
		return "", err
	}
	return tok.Username, nil
}
