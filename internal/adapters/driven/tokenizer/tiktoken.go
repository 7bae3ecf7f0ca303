package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// DefaultEncoding is used when the model name is unknown to tiktoken.
const DefaultEncoding = "cl100k_base"

// Verify interface compliance
var _ driven.Tokenizer = (*Tiktoken)(nil)

// allowSpecial lets text containing special-token literals such as
// "<|endoftext|>" encode as ordinary input instead of failing.
var allowSpecial = []string{"all"}

// BPE ranks ship embedded in the binary instead of being downloaded on first use.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// encodings caches one BPE instance per encoding name for the process lifetime.
// A failed load is not cached; the next caller tries again.
var encodings = struct {
	mu     sync.Mutex
	byName map[string]*tiktoken.Tiktoken
}{byName: make(map[string]*tiktoken.Tiktoken)}

// getEncoding is swapped in tests.
var getEncoding = tiktoken.GetEncoding

func loadEncoding(name string) (*tiktoken.Tiktoken, error) {
	encodings.mu.Lock()
	defer encodings.mu.Unlock()
	if bpe, ok := encodings.byName[name]; ok {
		return bpe, nil
	}
	bpe, err := getEncoding(name)
	if err != nil {
		return nil, err
	}
	encodings.byName[name] = bpe
	return bpe, nil
}

// Tiktoken implements Tokenizer with OpenAI's BPE encodings.
// The underlying encoding is built once and never mutated, so a Tiktoken
// is safe for concurrent use.
type Tiktoken struct {
	name string
	bpe  *tiktoken.Tiktoken
}

// NewForModel resolves the encoding an embedding model uses
// (text-embedding-3-small → cl100k_base), falling back to DefaultEncoding.
func NewForModel(model string) (*Tiktoken, error) {
	name := DefaultEncoding
	if enc, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		name = enc
	}
	return NewForEncoding(name)
}

// NewForEncoding loads an encoding by name.
func NewForEncoding(name string) (*Tiktoken, error) {
	bpe, err := loadEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", name, err)
	}
	return &Tiktoken{name: name, bpe: bpe}, nil
}

func (t *Tiktoken) Encode(text string) []int {
	if text == "" {
		return []int{}
	}
	return t.bpe.Encode(text, allowSpecial, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	if len(tokens) == 0 {
		return ""
	}
	return t.bpe.Decode(tokens)
}

func (t *Tiktoken) Count(text string) int {
	return len(t.Encode(text))
}

func (t *Tiktoken) Encoding() string {
	return t.name
}
