package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/hkdf"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

const (
	// MinKeySize is the minimum shared key length for message protection.
	MinKeySize = 16

	// SaltSize is the per-message HKDF salt length.
	SaltSize = 16

	// SignatureSize is the HMAC-SHA256 signature length.
	SignatureSize = 32

	// HeaderSecurity carries the protection parameters of a message.
	HeaderSecurity = "Security"

	// Namespace of the security headers.
	Namespace = "urn:svcmodel:security"

	keyInfo = "svcmodel message protection v1"
)

// Protection errors.
var (
	ErrNotProtected     = errors.New("message is not protected")
	ErrSignatureInvalid = errors.New("message signature is invalid")
	ErrDecryptFailed    = errors.New("message body cannot be decrypted")
)

// securityHeader is the CBOR payload of the Security header.
type securityHeader struct {
	Salt      []byte `cbor:"1,keyasint"`
	Nonce     []byte `cbor:"2,keyasint"`
	Signature []byte `cbor:"3,keyasint"`
}

// Protector encrypts and signs message bodies with keys derived per message
// from a shared secret.
//
// For every message a random salt feeds HKDF-SHA256, yielding an AES-256-GCM
// key and an HMAC-SHA256 key. The body is sealed with GCM using the
// addressing headers as additional data. The signature covers the salt,
// the nonce, the ciphertext, the addressing headers and every other header,
// so a tampered UsernameToken is detected too.
type Protector struct {
	secret []byte
}

// NewProtector returns a Protector for the shared secret.
func NewProtector(secret []byte) (*Protector, error) {
	if len(secret) < MinKeySize {
		return nil, fault.New(fault.KindConfiguration, "security.NewProtector", "key must be at least %d bytes", MinKeySize)
	}
	return &Protector{secret: append([]byte(nil), secret...)}, nil
}

// Protect consumes the body of msg and returns a derived message holding the
// ciphertext and a Security header.
func (p *Protector) Protect(msg *message.Message) (*message.Message, error) {
	const op = "security.Protect"
	body, err := msg.ReadBody()
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidOperation, op, err)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%s: salt: %w", op, err)
	}
	gcm, macKey, err := p.derive(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%s: nonce: %w", op, err)
	}

	out := msg.Derive(nil)
	aad := addressing(out)
	ciphertext := gcm.Seal(nil, nonce, body, aad)

	hdr := securityHeader{Salt: salt, Nonce: nonce}
	hdr.Signature = sign(macKey, hdr, ciphertext, aad, out.Headers())
	value, err := cbor.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	protected := out.Derive(message.BytesBody(ciphertext))
	if err := protected.SetHeader(message.Header{
		Name:           HeaderSecurity,
		Namespace:      Namespace,
		Value:          base64.StdEncoding.EncodeToString(value),
		MustUnderstand: true,
	}); err != nil {
		return nil, err
	}
	return protected, nil
}

// Unprotect verifies and decrypts a message produced by Protect. Every
// failure is a security validation error.
func (p *Protector) Unprotect(msg *message.Message) (*message.Message, error) {
	const op = "security.Unprotect"
	headers := msg.Headers()
	raw, ok := headers.Get(HeaderSecurity)
	if !ok {
		return nil, fault.Wrap(fault.KindSecurityValidation, op, ErrNotProtected)
	}
	value, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fault.Wrapf(fault.KindSecurityValidation, op, err, "malformed security header")
	}
	var hdr securityHeader
	if err := cbor.Unmarshal(value, &hdr); err != nil {
		return nil, fault.Wrapf(fault.KindSecurityValidation, op, err, "malformed security header")
	}
	if len(hdr.Salt) != SaltSize {
		return nil, fault.New(fault.KindSecurityValidation, op, "invalid salt length %d", len(hdr.Salt))
	}

	ciphertext, err := msg.ReadBody()
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidOperation, op, err)
	}
	gcm, macKey, err := p.derive(hdr.Salt)
	if err != nil {
		return nil, err
	}
	if len(hdr.Nonce) != gcm.NonceSize() {
		return nil, fault.New(fault.KindSecurityValidation, op, "invalid nonce length %d", len(hdr.Nonce))
	}

	headers.Remove(HeaderSecurity)
	aad := addressing(msg)
	want := sign(macKey, securityHeader{Salt: hdr.Salt, Nonce: hdr.Nonce}, ciphertext, aad, headers)
	if !hmac.Equal(hdr.Signature, want) {
		return nil, fault.Wrap(fault.KindSecurityValidation, op, ErrSignatureInvalid)
	}
	body, err := gcm.Open(nil, hdr.Nonce, ciphertext, aad)
	if err != nil {
		return nil, fault.Wrap(fault.KindSecurityValidation, op, ErrDecryptFailed)
	}

	out := msg.Derive(message.BytesBody(body))
	if err := out.RemoveHeader(HeaderSecurity); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Protector) derive(salt []byte) (cipher.AEAD, []byte, error) {
	r := hkdf.New(sha256.New, p.secret, salt, []byte(keyInfo))
	encKey := make([]byte, 32)
	macKey := make([]byte, 32)
	if _, err := io.ReadFull(r, encKey); err != nil {
		return nil, nil, fmt.Errorf("derive encryption key: %w", err)
	}
	if _, err := io.ReadFull(r, macKey); err != nil {
		return nil, nil, fmt.Errorf("derive signing key: %w", err)
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, macKey, nil
}

// addressing is the additional data bound to the ciphertext.
func addressing(m *message.Message) []byte {
	return []byte(m.Action() + "\n" + m.ID() + "\n" + m.RelatesTo() + "\n" + m.To())
}

func sign(key []byte, hdr securityHeader, ciphertext, aad []byte, headers message.Headers) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(hdr.Salt)
	mac.Write(hdr.Nonce)
	mac.Write(aad)
	for _, h := range headers {
		if h.Name == HeaderSecurity {
			continue
		}
		fmt.Fprintf(mac, "\n%s|%s|%s", h.Namespace, h.Name, h.Value)
	}
	mac.Write([]byte{0})
	mac.Write(ciphertext)
	return mac.Sum(nil)
}
