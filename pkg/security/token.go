package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

const (
	// HeaderUsernameToken carries a UsernameToken.
	HeaderUsernameToken = "UsernameToken"

	// MaxClockSkew bounds the age of an accepted UsernameToken.
	MaxClockSkew = 5 * time.Minute

	tokenNonceSize = 16
)

// ErrTokenExpired is returned for tokens created outside MaxClockSkew.
var ErrTokenExpired = errors.New("username token expired")

// UsernameToken is a username/password credential carried in a header.
// The password travels in clear inside the header, so the token is only
// sent over TLS or inside a protected message.
type UsernameToken struct {
	Username string    `cbor:"1,keyasint"`
	Password string    `cbor:"2,keyasint"`
	Nonce    []byte    `cbor:"3,keyasint"`
	Created  time.Time `cbor:"4,keyasint"`
}

// NewUsernameToken returns a token created now with a random nonce.
func NewUsernameToken(username, password string) (*UsernameToken, error) {
	nonce := make([]byte, tokenNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("token nonce: %w", err)
	}
	return &UsernameToken{
		Username: username,
		Password: password,
		Nonce:    nonce,
		Created:  time.Now().UTC().Truncate(time.Millisecond),
	}, nil
}

// Attach returns a derived message carrying the token header.
func (t *UsernameToken) Attach(msg *message.Message) (*message.Message, error) {
	data, err := cbor.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode username token: %w", err)
	}
	body, err := msg.ReadBody()
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidOperation, "security.UsernameToken", err)
	}
	out := msg.Derive(message.BytesBody(body))
	if err := out.SetHeader(message.Header{
		Name:           HeaderUsernameToken,
		Namespace:      Namespace,
		Value:          base64.StdEncoding.EncodeToString(data),
		MustUnderstand: true,
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadUsernameToken extracts the token of msg. ok is false when the
// message carries none.
func ReadUsernameToken(msg *message.Message) (tok *UsernameToken, ok bool, err error) {
	raw, found := msg.Headers().Get(HeaderUsernameToken)
	if !found {
		return nil, false, nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, true, fault.Wrapf(fault.KindSecurityValidation, "security.ReadUsernameToken", err, "malformed username token")
	}
	tok = &UsernameToken{}
	if err := cbor.Unmarshal(data, tok); err != nil {
		return nil, true, fault.Wrapf(fault.KindSecurityValidation, "security.ReadUsernameToken", err, "malformed username token")
	}
	return tok, true, nil
}

// Fresh reports an error when the token was created more than MaxClockSkew
// away from now.
func (t *UsernameToken) Fresh(now time.Time) error {
	d := now.Sub(t.Created)
	if d < 0 {
		d = -d
	}
	if d > MaxClockSkew {
		return fault.Wrap(fault.KindSecurityValidation, "security.UsernameToken", ErrTokenExpired)
	}
	return nil
}
