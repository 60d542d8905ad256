// Package device derives human-readable device names and stable fingerprints
// from User-Agent strings. Fingerprints bind sessions to the device that
// created them; a changed fingerprint on token refresh surfaces as drift for
// logging and review, not as a hard failure.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// Service computes and compares device fingerprints. When disabled it
// produces empty fingerprints, which downstream comparison treats as
// "no binding" rather than a mismatch.
type Service struct {
	enabled bool
}

func NewService(enabled bool) *Service {
	return &Service{enabled: enabled}
}

// ParseUserAgent renders a User-Agent as "Browser on OS" for session
// listings and audit detail. Unparseable parts fall back to explicit
// unknowns; the result is always non-empty and trimmed.
func ParseUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if name == "" {
		name = "Unknown Browser"
	}

	osName := ua.OSInfo().Name
	if ua.Mobile() && ua.Platform() != "" {
		// "Safari on iPhone" reads better than the full OS string.
		osName = ua.Platform()
	}
	if osName == "" {
		osName = "Unknown OS"
	}

	return fmt.Sprintf("%s on %s", name, osName)
}

// ComputeFingerprint hashes the stable parts of a User-Agent: browser name,
// major version, OS name, and platform. Minor and patch versions are
// excluded so routine browser updates do not rebind every session; a major
// upgrade or a different browser changes the fingerprint.
func (s *Service) ComputeFingerprint(raw string) string {
	if !s.enabled {
		return ""
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	canonical := strings.Join([]string{
		name,
		majorVersion(version),
		ua.OSInfo().Name,
		ua.Platform(),
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// CompareFingerprints reports whether the current fingerprint matches the
// stored one. Drift means a stored binding exists and the device no longer
// matches it; with either side empty there is no binding to drift from.
func (s *Service) CompareFingerprints(current, stored string) (matched, drift bool) {
	if current == "" || stored == "" {
		return false, false
	}
	if current == stored {
		return true, false
	}
	return false, true
}

func majorVersion(version string) string {
	if version == "" {
		return ""
	}
	if dot := strings.IndexByte(version, '.'); dot >= 0 {
		return version[:dot]
	}
	return version
}
