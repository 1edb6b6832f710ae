package translate

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"videogen-server/internal/domain"
)

// quotePairs maps opening quote runes to their closing counterparts. ASCII
// quotes close with the same rune.
var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'“': '”', // curly double
	'‘': '’', // curly single
	'«': '»', // guillemets
	'「': '」', // CJK corner brackets
}

// ExtractDialogue finds quoted/spoken fragments in the source prompt, in
// order of appearance, each paired with its romanization. The pass is pure
// text processing and deterministic for a given input.
func ExtractDialogue(text string) []domain.DialogueFragment {
	var fragments []domain.DialogueFragment
	in := []rune(text)
	for i := 0; i < len(in); i++ {
		closer, ok := quotePairs[in[i]]
		if !ok {
			continue
		}
		// A bare apostrophe only opens dialogue at a word boundary,
		// otherwise contractions like "don't" would start a fragment.
		if in[i] == '\'' && !atBoundary(in, i-1) {
			continue
		}
		end := -1
		for j := i + 1; j < len(in); j++ {
			if in[j] != closer {
				continue
			}
			if closer == '\'' && !atBoundary(in, j+1) {
				continue
			}
			end = j
			break
		}
		if end < 0 {
			continue
		}
		fragment := strings.TrimSpace(string(in[i+1 : end]))
		if fragment != "" {
			fragments = append(fragments, domain.DialogueFragment{
				Text:      fragment,
				Romanized: Romanize(fragment),
			})
		}
		i = end
	}
	return fragments
}

func atBoundary(in []rune, idx int) bool {
	if idx < 0 || idx >= len(in) {
		return true
	}
	r := in[idx]
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Romanize folds combining marks out of the fragment (NFD, strip marks, NFC),
// yielding a stable ASCII-leaning form for the provider's speech renderer.
func Romanize(text string) string {
	folded, _, err := transform.String(foldTransform, text)
	if err != nil {
		return text
	}
	return folded
}
