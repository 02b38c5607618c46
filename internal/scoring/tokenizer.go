package scoring

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer splits text into the units the ROUGE-L metric compares. It is an
// explicitly constructed, shared-by-reference dependency of the Engine, so
// expensive tokenizer state (BPE tables) is built once and reused.
type Tokenizer interface {
	Tokenize(s string) []string
}

// StemTokenizer is the default tokenizer: lowercase, split on
// non-alphanumeric runes, Porter-stem every token longer than three runes.
type StemTokenizer struct{}

// NewStemTokenizer returns the default word-level tokenizer.
func NewStemTokenizer() *StemTokenizer { return &StemTokenizer{} }

func (t *StemTokenizer) Tokenize(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) > 3 {
			w = english.Stem(w, false)
		}
		out = append(out, w)
	}
	return out
}

// SubwordTokenizer tokenizes with a GPT-2-style byte-level BPE (the r50k
// vocabulary) for cross-lingual comparison, where word stems are meaningless.
// The leading space marker the BPE attaches to word-initial tokens is
// stripped so tokens compare cleanly.
type SubwordTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewSubwordTokenizer loads the BPE encoding once.
func NewSubwordTokenizer() (*SubwordTokenizer, error) {
	enc, err := tiktoken.GetEncoding("r50k_base")
	if err != nil {
		return nil, fmt.Errorf("load r50k_base encoding: %w", err)
	}
	return &SubwordTokenizer{enc: enc}, nil
}

func (t *SubwordTokenizer) Tokenize(s string) []string {
	ids := t.enc.Encode(s, nil, nil)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		tok := t.enc.Decode([]int{id})
		tok = strings.TrimPrefix(tok, " ")
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}
