package driven

// Tokenizer converts text to model token IDs and back.
// Implementations are immutable after construction and safe for concurrent use.
type Tokenizer interface {
	// Encode returns the token IDs for text
	Encode(text string) []int

	// Decode returns the text for a sequence of token IDs.
	// Decoding a slice of Encode's output may not reproduce boundary bytes exactly.
	Decode(tokens []int) string

	// Count returns len(Encode(text))
	Count(text string) int

	// Encoding returns the name of the underlying encoding (e.g. cl100k_base)
	Encoding() string
}
