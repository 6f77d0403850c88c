package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

const (
	// DefaultCodeAlphabet is digits followed by ASCII letters.
	DefaultCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// DefaultCodeLength gives about 119 bits with DefaultCodeAlphabet.
	DefaultCodeLength = 20

	minCodeEntropyBits = 112
)

// CodeGenerator produces one-time codes from a cryptographically secure
// source. Symbols are drawn uniformly; crypto/rand.Int rejects out-of-range
// samples so there is no modulo bias.
type CodeGenerator struct {
	length   int
	alphabet []rune
	max      *big.Int
}

// NewCodeGenerator validates the configuration. The alphabet must not repeat
// symbols and length*log2(len(alphabet)) must reach 112 bits.
func NewCodeGenerator(length int, alphabet string) (*CodeGenerator, error) {
	symbols := []rune(alphabet)
	if len(symbols) < 2 {
		return nil, errors.New("code alphabet needs at least two symbols")
	}

	seen := make(map[rune]struct{}, len(symbols))
	for _, r := range symbols {
		if _, dup := seen[r]; dup {
			return nil, fmt.Errorf("code alphabet repeats %q", r)
		}
		seen[r] = struct{}{}
	}

	if length <= 0 {
		return nil, errors.New("code length must be positive")
	}

	bits := float64(length) * math.Log2(float64(len(symbols)))
	if bits < minCodeEntropyBits {
		return nil, fmt.Errorf("code entropy %.0f bits is below %d", bits, minCodeEntropyBits)
	}

	return &CodeGenerator{
		length:   length,
		alphabet: symbols,
		max:      big.NewInt(int64(len(symbols))),
	}, nil
}

// Generate returns a fresh code.
func (g *CodeGenerator) Generate() (string, error) {
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, g.max)
		if err != nil {
			return "", fmt.Errorf("code generation: %w", err)
		}
		b.WriteRune(g.alphabet[n.Int64()])
	}
	return b.String(), nil
}
