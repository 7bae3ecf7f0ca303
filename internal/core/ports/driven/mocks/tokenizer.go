package mocks

// MockTokenizer treats every rune as one token, so round trips are exact
// and token offsets are easy to reason about in tests.
type MockTokenizer struct{}

func NewMockTokenizer() *MockTokenizer {
	return &MockTokenizer{}
}

func (m *MockTokenizer) Encode(text string) []int {
	tokens := make([]int, 0, len(text))
	for _, r := range text {
		tokens = append(tokens, int(r))
	}
	return tokens
}

func (m *MockTokenizer) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}

func (m *MockTokenizer) Count(text string) int {
	return len([]rune(text))
}

func (m *MockTokenizer) Encoding() string {
	return "mock-runes"
}
