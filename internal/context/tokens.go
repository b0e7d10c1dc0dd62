package context

// EstimateTokens approximates the token count of text as ceil(chars/4).
// The estimate leans high for dense prose, which is the safe direction for
// budget enforcement.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
