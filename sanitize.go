package rcon

import "strings"

// ColorIntroducer is the section sign rune some game servers embed in console
// output to introduce a one-character color code, for example "§6" for gold
// text.
const ColorIntroducer = '§'

// StripColors removes color-code sequences from server console output. Each
// occurrence of [ColorIntroducer] is dropped along with the single rune that
// follows it; an introducer at the end of the input is dropped on its own.
// All other runes pass through unchanged.
func StripColors(s string) string {
	if !strings.ContainsRune(s, ColorIntroducer) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	skip := false
	for _, r := range s {
		if skip {
			skip = false
			continue
		}
		if r == ColorIntroducer {
			skip = true
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
