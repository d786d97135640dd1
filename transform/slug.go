package transform

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	xtransform "golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that do not decompose into a base letter plus a mark
var foldSpecial = strings.NewReplacer(
	"ı", "i",
	"ß", "ss",
	"æ", "ae", "Æ", "ae",
	"ø", "o", "Ø", "o",
	"đ", "d", "Đ", "d",
	"ł", "l", "Ł", "l",
	"&", " and ",
)

// Slug joins the parts into a lowercase ASCII path segment: diacritics are folded,
// anything else that is not a letter or digit becomes a single '-'.
func Slug(parts ...string) string {
	text := foldSpecial.Replace(strings.Join(parts, " "))
	// The chain keeps state, so each call gets its own
	fold := xtransform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := xtransform.String(fold, text); err == nil {
		text = folded
	}

	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r)
			dash = false
		} else {
			dash = true
		}
	}
	return sb.String()
}
