package transport

import (
	"fmt"
	"strings"

	"github.com/kardosh/multisend/internal/model"
)

// Address servers recognized by the messaging network.
const (
	UserServer  = "s.whatsapp.net"
	GroupServer = "g.us"
)

// NormalizeTarget converts a raw destination into the external address
// form. Already-qualified user or group addresses pass through after
// stripping junk characters. Bare numbers get defaultCountry prefixed when
// they look like a local number (short, no country code).
func NormalizeTarget(raw, defaultCountry string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '@', r == '.':
			return r
		default:
			return -1
		}
	}, raw)

	if strings.HasSuffix(cleaned, "@"+UserServer) || strings.HasSuffix(cleaned, "@"+GroupServer) {
		if idx := strings.IndexByte(cleaned, '@'); idx == 0 {
			return "", fmt.Errorf("%w: %q has no local part", model.ErrInvalidTarget, raw)
		}
		return cleaned, nil
	}
	if strings.ContainsAny(cleaned, "@.") {
		return "", fmt.Errorf("%w: %q is not a recognized address", model.ErrInvalidTarget, raw)
	}

	digits := cleaned
	if digits == "" {
		return "", fmt.Errorf("%w: %q contains no digits", model.ErrInvalidTarget, raw)
	}
	if len(digits) < 7 {
		return "", fmt.Errorf("%w: %q is too short", model.ErrInvalidTarget, raw)
	}

	if defaultCountry != "" && !strings.HasPrefix(digits, defaultCountry) && len(digits) < 12 {
		digits = defaultCountry + strings.TrimPrefix(digits, "0")
	}

	return digits + "@" + UserServer, nil
}

// BarePhone strips an address down to digits only, as required by
// pairing-code requests.
func BarePhone(identity string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, identity)
}
