// Package similarity implements the hybrid CJK/Latin tokenizer and
// Jaccard-based near-duplicate detection used by memory and skill
// extraction and cleanup. Ported in behavior (not text) from
// original_source/src/ai/similarity.rs.
package similarity

import (
	"strings"
	"unicode"
)

// Extraction-time thresholds (spec.md §4.D).
const (
	MemoryExtractionThreshold = 0.65
	SkillExtractionThreshold  = 0.70
)

// isCJK reports whether r falls in one of the CJK-ish Unicode ranges the
// original tokenizer treats as ideographic: Unified Ideographs, Extension A,
// Hiragana, Katakana, Hangul, CJK Compatibility.
func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK Extension A
		return true
	case r >= 0x3040 && r <= 0x309F: // Hiragana
		return true
	case r >= 0x30A0 && r <= 0x30FF: // Katakana
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // Hangul
		return true
	case r >= 0xF900 && r <= 0xFAFF: // CJK Compatibility
		return true
	default:
		return false
	}
}

// isWordRune reports whether r belongs to a non-CJK alphanumeric token run,
// matching the original's Unicode-aware is_alphanumeric() rather than an
// ASCII-only check, so accented Latin and Cyrillic text tokenizes the same
// as the ground truth.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// simpleStem applies the original's suffix-stripping rules with length
// guards, checked in the same order: ting, ing, ed, es, s, ly.
func simpleStem(word string) string {
	n := len(word)
	switch {
	case n > 5 && strings.HasSuffix(word, "ting"):
		return word[:n-3] // keep the trailing "t"
	case n > 4 && strings.HasSuffix(word, "ing"):
		return word[:n-3]
	case n > 3 && strings.HasSuffix(word, "ed"):
		return word[:n-2]
	case n > 3 && strings.HasSuffix(word, "es"):
		return word[:n-2]
	case n > 3 && strings.HasSuffix(word, "s"):
		return word[:n-1]
	case n > 4 && strings.HasSuffix(word, "ly"):
		return word[:n-2]
	default:
		return word
	}
}

// tokenize lowercases the input, then walks it rune by rune, buffering
// Latin/alphanumeric runs (stemmed, length >= 2 after lowercasing) and CJK
// runs (emitted as overlapping 2-grams, or the single rune itself if the
// run length is 1) separately. Any other rune flushes both buffers.
func tokenize(text string) []string {
	lower := strings.ToLower(text)

	var tokens []string
	var wordBuf []rune
	var cjkBuf []rune

	flushWord := func() {
		if len(wordBuf) >= 2 {
			tokens = append(tokens, simpleStem(string(wordBuf)))
		}
		wordBuf = wordBuf[:0]
	}
	flushCJK := func() {
		switch len(cjkBuf) {
		case 0:
			return
		case 1:
			tokens = append(tokens, string(cjkBuf))
		default:
			for i := 0; i < len(cjkBuf)-1; i++ {
				tokens = append(tokens, string(cjkBuf[i:i+2]))
			}
		}
		cjkBuf = cjkBuf[:0]
	}

	for _, r := range lower {
		switch {
		case isCJK(r):
			flushWord()
			cjkBuf = append(cjkBuf, r)
		case isWordRune(r):
			flushCJK()
			wordBuf = append(wordBuf, r)
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()

	return tokens
}

// tokenSet is a small set built from tokenize's output, used for Jaccard.
type tokenSet map[string]struct{}

func toSet(tokens []string) tokenSet {
	s := make(tokenSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// jaccard computes |A ∩ B| / |A ∪ B|; both empty -> 1.0; one empty -> 0.0.
func jaccard(a, b tokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// Jaccard exposes jaccard over raw text for callers outside this package
// that only need set similarity over tokenized strings.
func Jaccard(a, b string) float64 {
	return jaccard(toSet(tokenize(a)), toSet(tokenize(b)))
}

// Tokenize exposes the tokenizer; stable for equal inputs.
func Tokenize(text string) []string {
	return tokenize(text)
}

// CombinedMemorySimilarity weights title 0.6 / content 0.4, per spec.md §4.D.
func CombinedMemorySimilarity(titleA, contentA, titleB, contentB string) float64 {
	return 0.6*Jaccard(titleA, titleB) + 0.4*Jaccard(contentA, contentB)
}

// IsSimilarMemory reports whether two (title, content) pairs exceed threshold.
func IsSimilarMemory(titleA, contentA, titleB, contentB string, threshold float64) bool {
	return CombinedMemorySimilarity(titleA, contentA, titleB, contentB) >= threshold
}

// CombinedSkillSimilarity weights name 0.3 / description 0.7, per spec.md §4.D.
func CombinedSkillSimilarity(nameA, descA, nameB, descB string) float64 {
	return 0.3*Jaccard(nameA, nameB) + 0.7*Jaccard(descA, descB)
}

// IsSimilarSkill reports whether two (name, description) pairs exceed threshold.
func IsSimilarSkill(nameA, descA, nameB, descB string, threshold float64) bool {
	return CombinedSkillSimilarity(nameA, descA, nameB, descB) >= threshold
}
