package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Phishing text routinely hides trigger words behind fullwidth forms,
// combining accents, or zero-width characters ("vеrify" with a Cyrillic е,
// "ｐａｙｐａｌ", "ver​ify"). Normalization runs before any pattern matching so
// the heuristics see the text a victim would read, not the bytes an
// attacker wrote.

// zeroWidth strips zero-width and bidi control characters.
var zeroWidth = runes.Remove(runes.In(unicode.Cf))

// marks strips combining marks left over after NFKD decomposition, so
// accented lookalikes fold to their base letters.
var marks = runes.Remove(runes.In(unicode.Mn))

var foldChain = transform.Chain(norm.NFKD, zeroWidth, marks, norm.NFC)

// homoglyphs maps common Cyrillic/Greek confusables onto their Latin
// lookalikes. Deliberately small: only letters that appear in observed
// phishing samples.
var homoglyphs = strings.NewReplacer(
	"а", "a", "е", "e", "о", "o", "р", "p", "с", "c", "х", "x",
	"і", "i", "у", "y", "ѕ", "s", "ԁ", "d", "ο", "o", "α", "a",
	"А", "A", "Е", "E", "О", "O", "Р", "P", "С", "C", "Х", "X",
)

// Normalize folds text into a canonical lowercase form for matching:
// NFKD + strip zero-width/combining characters + confusable folding.
func Normalize(s string) string {
	folded, _, err := transform.String(foldChain, s)
	if err != nil {
		// Malformed input: fall back to the raw text rather than dropping it.
		folded = s
	}
	return strings.ToLower(homoglyphs.Replace(folded))
}
