package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the event signature.
const SignatureHeader = "Healthbridge-Signature"

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("signature mismatch")
	ErrStaleSignature   = errors.New("signature timestamp outside tolerance")
)

// HMACSigner signs payloads as
//
//	Healthbridge-Signature: t={unix},v1={hex(HMAC-SHA256(secret, "{unix}.{payload}"))}
type HMACSigner struct {
	now func() time.Time
}

// NewHMACSigner creates a signer using wall-clock timestamps.
func NewHMACSigner() *HMACSigner {
	return &HMACSigner{now: time.Now}
}

// Sign implements Signer.
func (s *HMACSigner) Sign(payload []byte, secret string) map[string]string {
	return s.SignWithTimestamp(payload, secret, s.now().Unix())
}

// SignWithTimestamp signs with a fixed timestamp.
func (s *HMACSigner) SignWithTimestamp(payload []byte, secret string, timestamp int64) map[string]string {
	return map[string]string{
		SignatureHeader: fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(timestamp, payload, secret)),
	}
}

// ComputeSignature returns the hex HMAC-SHA256 of "{timestamp}.{payload}".
func ComputeSignature(timestamp int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header against payload. A zero tolerance skips
// the timestamp check.
func Verify(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}
	var (
		timestamp int64
		sigs      []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("bad timestamp %q: %w", v, ErrBadSignature)
			}
			timestamp = ts
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if timestamp == 0 || len(sigs) == 0 {
		return ErrMissingSignature
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrStaleSignature
		}
	}

	want := ComputeSignature(timestamp, payload, secret)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(want)) {
			return nil
		}
	}
	return ErrBadSignature
}
