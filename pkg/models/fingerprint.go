package models

import "fmt"

// Fingerprint is the composite identity summary attached to a session.
// Hash is always 64 lowercase hex characters (SHA-256); Confidence is
// always within [0,1]. Both are enforced at construction.
type Fingerprint struct {
	Hash       string                `json:"hash"`
	Components FingerprintComponents `json:"components"`
	Confidence float64               `json:"confidence"`
}

// FingerprintComponents holds per-signal hashes. An empty string means
// the source signal was absent.
type FingerprintComponents struct {
	Canvas  string `json:"canvas,omitempty"`
	WebGL   string `json:"webgl,omitempty"`
	Audio   string `json:"audio,omitempty"`
	Fonts   string `json:"fonts,omitempty"`
	Plugins string `json:"plugins,omitempty"`
	Screen  string `json:"screen,omitempty"`
	Network string `json:"network,omitempty"`
}

func NewFingerprint(hash string, components FingerprintComponents, confidence float64) (Fingerprint, error) {
	if len(hash) != 64 {
		return Fingerprint{}, fmt.Errorf("fingerprint hash must be 64 hex chars, got %d", len(hash))
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return Fingerprint{}, fmt.Errorf("fingerprint hash contains non-hex character %q", c)
		}
	}
	if confidence < 0 || confidence > 1 {
		return Fingerprint{}, fmt.Errorf("fingerprint confidence out of range: %g", confidence)
	}
	return Fingerprint{Hash: hash, Components: components, Confidence: confidence}, nil
}
