package payments

import "strings"

// UseSandboxInitPoint decides which MercadoPago checkout URL to send the
// visitor to. Modes:
// - "sandbox": always the sandbox init point
// - "production" (or "live"): always the production init point
// - "auto" or empty: sandbox outside production
func UseSandboxInitPoint(mode string, production bool) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "sandbox", "test":
		return true
	case "production", "live":
		return false
	default:
		return !production
	}
}
