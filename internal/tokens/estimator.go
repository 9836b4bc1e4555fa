// Package tokens provides the token and credit cost heuristics used for
// pre-flight reservations and post-hoc accounting.
package tokens

const (
	// charsPerToken is the fixed character-to-token ratio.
	charsPerToken = 4

	// tokensPerBlock is the billing granularity: cost accrues in blocks of
	// this many tokens, rounded up.
	tokensPerBlock = 100
)

// Estimate maps text length to an estimated token count, rounding up. Pure
// and deterministic; used both to size reservations and to price content when
// the endpoint reports no usage.
func Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Cost converts a token count into credits at ratePerBlock credits per
// started block of 100 tokens.
func Cost(tokenCount, ratePerBlock int) int {
	if tokenCount <= 0 {
		return 0
	}
	blocks := (tokenCount + tokensPerBlock - 1) / tokensPerBlock
	return blocks * ratePerBlock
}
