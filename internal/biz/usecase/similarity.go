package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minSimilarityWordLen is the length a word must exceed to count toward similarity
const minSimilarityWordLen = 3

// similarityWords returns the case-folded set of words longer than
// minSimilarityWordLen runes
func similarityWords(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) > minSimilarityWordLen {
			set[f] = struct{}{}
		}
	}
	return set
}

// DiceSimilarity scores token overlap as 2·|A∩B| / (|A|+|B|).
// Two texts with no qualifying words score 0.
func DiceSimilarity(a, b string) float64 {
	wa, wb := similarityWords(a), similarityWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(wa)+len(wb))
}
