package content

import (
	"strings"

	"landing-page-generator/internal/apperrors"
)

// KeywordCount is the fixed length of a derived keyword set.
const KeywordCount = 4

// Positions inside a derived keyword set. Prompts reference them by index.
const (
	KeywordBase = iota
	KeywordLogin
	KeywordCurrentLogin
	KeywordBonus
)

var keywordSuffixes = [KeywordCount]string{"", " giriş", " güncel giriş", " bonus"}

// DeriveKeywords expands a seed into the fixed, ordered set of search phrases.
func DeriveKeywords(seed string) ([]string, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, apperrors.Generation("seed keyword is required", nil)
	}
	out := make([]string, KeywordCount)
	for i, suffix := range keywordSuffixes {
		out[i] = seed + suffix
	}
	return out, nil
}
