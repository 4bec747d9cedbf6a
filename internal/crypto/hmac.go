// Package crypto signs audit records and checks operator API keys.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	signingKeyLen    = 32
)

// ErrEmptyPassphrase is returned when no signing passphrase is configured.
var ErrEmptyPassphrase = errors.New("crypto: signing passphrase is empty")

// AuditSigner produces tamper-evident HMAC-SHA256 signatures over audit log
// rows. The HMAC key is derived once from a passphrase with PBKDF2.
type AuditSigner struct {
	key []byte
}

// NewAuditSigner derives the signing key from passphrase and salt.
func NewAuditSigner(passphrase, salt string) (*AuditSigner, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if salt == "" {
		salt = "tradepilot-audit"
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, signingKeyLen, sha256.New)
	return &AuditSigner{key: key}, nil
}

// Sign returns the base64 HMAC of an audit row. detail must be the exact
// JSON bytes that are stored.
func (s *AuditSigner) Sign(event string, detail []byte, at time.Time) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(message(event, detail, at))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig matches the row.
func (s *AuditSigner) Verify(event string, detail []byte, at time.Time, sig string) bool {
	want, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(message(event, detail, at))
	return hmac.Equal(mac.Sum(nil), want)
}

// message is event \n unix-micros \n detail. Microseconds match the
// precision of a timestamptz column.
func message(event string, detail []byte, at time.Time) []byte {
	buf := make([]byte, 0, len(event)+len(detail)+24)
	buf = append(buf, event...)
	buf = append(buf, '\n')
	buf = strconv.AppendInt(buf, at.UnixMicro(), 10)
	buf = append(buf, '\n')
	buf = append(buf, detail...)
	return buf
}

// String returns a redacted representation suitable for logging.
func (s *AuditSigner) String() string {
	return fmt.Sprintf("AuditSigner{key=%d bytes}", len(s.key))
}
