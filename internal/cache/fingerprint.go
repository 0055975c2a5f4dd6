package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Fingerprint is a deterministic encoding of the parameters that affect
// an artifact: an ordered list of named values fed through one digest.
// It replaces ad hoc truncated sub-key hashing, which risked collisions.
type Fingerprint struct {
	parts []string
}

// NewFingerprint starts an empty fingerprint.
func NewFingerprint() *Fingerprint {
	return &Fingerprint{}
}

// Add appends a named parameter. Order matters: callers add parameters
// in a fixed order so equal configurations produce equal fingerprints.
func (f *Fingerprint) Add(name string, value interface{}) *Fingerprint {
	var s string
	switch v := value.(type) {
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'g', -1, 32)
	case bool:
		s = strconv.FormatBool(v)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case string:
		s = v
	default:
		s = fmt.Sprintf("%v", v)
	}
	f.parts = append(f.parts, name+"="+s)
	return f
}

// Canonical returns the readable parameter encoding.
func (f *Fingerprint) Canonical() string {
	return strings.Join(f.parts, ";")
}

// Digest returns the hex sha256 of the canonical encoding.
func (f *Fingerprint) Digest() string {
	sum := sha256.Sum256([]byte(f.Canonical()))
	return hex.EncodeToString(sum[:])
}
