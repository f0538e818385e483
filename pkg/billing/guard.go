package billing

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"lexhq/coinmeter/pkg/pricing"
)

// DefaultCharTolerance is the allowed disagreement between the client- and
// server-measured character counts before a charge is refused.
const DefaultCharTolerance = 10

// CharacterMismatchError indicates the client and server disagree about how
// long a message is beyond the configured tolerance. The server-measured
// count stays authoritative for billing; the comparison exists to catch
// client encoding bugs before money moves.
type CharacterMismatchError struct {
	Frontend  int
	Backend   int
	Tolerance int
}

// Error implements the error interface.
func (e *CharacterMismatchError) Error() string {
	return fmt.Sprintf("character count mismatch: frontend %d vs backend %d (tolerance %d)",
		e.Frontend, e.Backend, e.Tolerance)
}

// ValidateUsage reconciles independently measured usage before a charge.
//
// The character counts must agree within tolerance (a tolerance of 0 uses
// DefaultCharTolerance). For hybrid configs the token request must sit
// inside [TokensMin, TokensMax]; this is the rejecting boundary check, in
// contrast to the calculator's silent clamping used for estimates.
func ValidateUsage(cfg *pricing.Config, frontendChars, backendChars, maxTokensRequested, tolerance int) error {
	if tolerance <= 0 {
		tolerance = DefaultCharTolerance
	}

	diff := frontendChars - backendChars
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return &CharacterMismatchError{
			Frontend:  frontendChars,
			Backend:   backendChars,
			Tolerance: tolerance,
		}
	}

	return pricing.ValidateMaxTokens(cfg, maxTokensRequested)
}

// CountCharacters returns the billable character count of a message: runes
// after trimming surrounding whitespace. This is the server-side measurement
// that billing treats as authoritative.
func CountCharacters(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
