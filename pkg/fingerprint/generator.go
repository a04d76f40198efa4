// Package fingerprint derives a deterministic composite identity hash
// and a confidence score from a merged signal bundle. Component hashes
// use BLAKE3, the composite uses SHA-256; both choices are fixed per
// deployment because changing either invalidates stored fingerprints.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/zeebo/blake3"

	"github.com/copyleftdev/scrybe/pkg/models"
)

// Confidence weights per component; they sum to 1.00. Absent components
// contribute nothing, so confidence reflects how much of the browser's
// identity was actually observed.
const (
	weightCanvas  = 0.25
	weightWebGL   = 0.25
	weightAudio   = 0.15
	weightFonts   = 0.15
	weightPlugins = 0.10
	weightScreen  = 0.05
	weightNetwork = 0.05
)

// Generate is a pure function: identical bundles yield byte-identical
// fingerprints.
func Generate(bundle models.SignalBundle) (models.Fingerprint, error) {
	components := models.FingerprintComponents{
		Canvas:  bundle.Browser.CanvasHash,
		WebGL:   bundle.Browser.WebGLHash,
		Audio:   bundle.Browser.AudioHash,
		Fonts:   hashStringList(bundle.Browser.Fonts),
		Plugins: hashStringList(bundle.Browser.Plugins),
		Screen:  hashScreen(bundle.Browser.Screen),
		Network: hashNetwork(bundle.Network),
	}
	return models.NewFingerprint(compositeHash(components), components, confidence(components))
}

// hashStringList hashes the list in its given order. Order matters: a
// reordered but otherwise identical list is a different browser profile.
// Empty lists mean the signal was absent.
func hashStringList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	h := blake3.New()
	for _, item := range items {
		h.Write([]byte(item))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashScreen hashes the fixed-width little-endian encoding of the screen
// fields in declaration order.
func hashScreen(screen *models.ScreenInfo) string {
	if screen == nil {
		return ""
	}
	var buf [13]byte
	binary.LittleEndian.PutUint32(buf[0:4], screen.Width)
	binary.LittleEndian.PutUint32(buf[4:8], screen.Height)
	buf[8] = screen.ColorDepth
	binary.LittleEndian.PutUint32(buf[9:13], math.Float32bits(screen.PixelRatio))
	h := blake3.New()
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// hashNetwork hashes ip, then ja3, then ja4. Absent optional fields are
// omitted entirely rather than written as empty placeholders.
func hashNetwork(network models.NetworkSignals) string {
	if network.IP == "" {
		return ""
	}
	h := blake3.New()
	h.Write([]byte(network.IP))
	if network.JA3 != "" {
		h.Write([]byte(network.JA3))
	}
	if network.JA4 != "" {
		h.Write([]byte(network.JA4))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// compositeHash digests the present component hashes in a fixed order,
// skipping absent ones entirely.
func compositeHash(c models.FingerprintComponents) string {
	h := sha256.New()
	for _, component := range []string{c.Canvas, c.WebGL, c.Audio, c.Fonts, c.Plugins, c.Screen, c.Network} {
		if component != "" {
			h.Write([]byte(component))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func confidence(c models.FingerprintComponents) float64 {
	total := 0.0
	if c.Canvas != "" {
		total += weightCanvas
	}
	if c.WebGL != "" {
		total += weightWebGL
	}
	if c.Audio != "" {
		total += weightAudio
	}
	if c.Fonts != "" {
		total += weightFonts
	}
	if c.Plugins != "" {
		total += weightPlugins
	}
	if c.Screen != "" {
		total += weightScreen
	}
	if c.Network != "" {
		total += weightNetwork
	}
	if total < 0 {
		total = 0
	}
	if total > 1 {
		total = 1
	}
	return total
}
