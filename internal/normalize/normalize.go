// Package normalize implements the deterministic, idempotent text
// normalization pipeline used to index and query text. It operates on a
// codepoint array (Go runes restricted to the Basic Multilingual Plane,
// mirroring an "array of 16-bit code units"); runes above U+FFFF are
// out of scope and are lossy-folded to their low 16 bits before the
// rest of the pipeline runs, per step 1.
package normalize

import "strings"

// Text normalizes s according to opts, applying its eight steps in
// order. It is safe to call repeatedly: Text(Text(s, o), o) ==
// Text(s, o).
func Text(s string, opts Options) string {
	runes := []rune(s)

	// Step 1: fold non-BMP codepoints to their low 16 bits.
	for i, r := range runes {
		if r > 0xFFFF {
			runes[i] = r & 0xFFFF
		}
	}

	// Step 2: control characters -> space. \t \n \r are control chars
	// too (< 0x20); they're preserved only when space-squash is off.
	// When space-squash is on they fall into the generic control rule
	// and become spaces, then get squashed along with everything else.
	squash := opts.has(SpaceSquash)
	for i, r := range runes {
		if r == 0x7F || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			runes[i] = ' '
		} else if r < 0x20 && squash {
			runes[i] = ' '
		}
	}

	// Step 3: NBSP -> space.
	for i, r := range runes {
		if r == 0x00A0 {
			runes[i] = ' '
		}
	}

	// Step 4: lowercase.
	if opts.has(Lowercase) {
		for i, r := range runes {
			runes[i] = toLower(r)
		}
	}

	// Step 5: accent folding.
	if opts.has(NoAccent) {
		for i, r := range runes {
			runes[i] = foldAccent(r)
		}
	}

	// Step 6: CJK/fullwidth/halfwidth punctuation and space
	// normalization.
	runes = foldPunctuation(runes)
	if opts.has(Lowercase) {
		// Fullwidth capitals only become ASCII capitals here, after step
		// 4 has run; lowercase them too so Text stays idempotent.
		for i, r := range runes {
			if r >= 'A' && r <= 'Z' {
				runes[i] = r + 32
			}
		}
	}

	// Step 7: space squash.
	if squash {
		runes = squashSpaces(runes)
	}

	// Step 8: re-encode to UTF-8 happens implicitly via string(runes).
	return string(runes)
}

func squashSpaces(runes []rune) []rune {
	out := make([]rune, 0, len(runes))
	lastSpace := false
	for _, r := range runes {
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
			out = append(out, r)
			continue
		}
		lastSpace = false
		out = append(out, r)
	}
	// Trim leading/trailing.
	start := 0
	for start < len(out) && out[start] == ' ' {
		start++
	}
	end := len(out)
	for end > start && out[end-1] == ' ' {
		end--
	}
	return out[start:end]
}

// toLower lowercases ASCII + Latin-1 + Latin Extended-A + Greek capitals
// + Cyrillic capitals.
func toLower(r rune) rune {
	switch {
	case r >= 'A' && r <= 'Z':
		return r + 32
	case r >= 0x00C0 && r <= 0x00DE && r != 0x00D7: // Latin-1 capitals, skip multiplication sign
		return r + 0x20
	case r >= 0x0100 && r <= 0x0137 && r%2 == 0: // Latin Extended-A even = capital in most pairs
		return r + 1
	case r >= 0x0139 && r <= 0x0148 && r%2 == 1:
		return r + 1
	case r >= 0x014A && r <= 0x0177 && r%2 == 0:
		return r + 1
	case r == 0x0178: // Y with diaeresis
		return 0x00FF
	case r >= 0x0179 && r <= 0x017E && r%2 == 1:
		return r + 1
	case r >= 0x0391 && r <= 0x03A9 && r != 0x03A2: // Greek capitals (no final sigma slot)
		return r + 32
	case r >= 0x0410 && r <= 0x042F: // Cyrillic capitals
		return r + 32
	case r >= 0x0400 && r <= 0x040F: // Cyrillic capital letters with diacritics
		return r + 80
	default:
		return r
	}
}

// accentFold maps Latin-1 / Latin Extended-A accented letters to their
// unaccented ASCII base letter.
var accentFold = map[rune]rune{
	0x00C0: 'A', 0x00C1: 'A', 0x00C2: 'A', 0x00C3: 'A', 0x00C4: 'A', 0x00C5: 'A',
	0x00C7: 'C',
	0x00C8: 'E', 0x00C9: 'E', 0x00CA: 'E', 0x00CB: 'E',
	0x00CC: 'I', 0x00CD: 'I', 0x00CE: 'I', 0x00CF: 'I',
	0x00D1: 'N',
	0x00D2: 'O', 0x00D3: 'O', 0x00D4: 'O', 0x00D5: 'O', 0x00D6: 'O', 0x00D8: 'O',
	0x00D9: 'U', 0x00DA: 'U', 0x00DB: 'U', 0x00DC: 'U',
	0x00DD: 'Y',
	0x00DF: 's', // sharp s
	0x00E0: 'a', 0x00E1: 'a', 0x00E2: 'a', 0x00E3: 'a', 0x00E4: 'a', 0x00E5: 'a',
	0x00E7: 'c',
	0x00E8: 'e', 0x00E9: 'e', 0x00EA: 'e', 0x00EB: 'e',
	0x00EC: 'i', 0x00ED: 'i', 0x00EE: 'i', 0x00EF: 'i',
	0x00F1: 'n',
	0x00F2: 'o', 0x00F3: 'o', 0x00F4: 'o', 0x00F5: 'o', 0x00F6: 'o', 0x00F8: 'o',
	0x00F9: 'u', 0x00FA: 'u', 0x00FB: 'u', 0x00FC: 'u',
	0x00FD: 'y', 0x00FF: 'y',
	// Latin Extended-A: accented forms of A/C/E/I/L/N/O/R/S/T/U/Y/Z
	0x0100: 'A', 0x0101: 'a', 0x0102: 'A', 0x0103: 'a', 0x0104: 'A', 0x0105: 'a',
	0x0106: 'C', 0x0107: 'c', 0x0108: 'C', 0x0109: 'c', 0x010A: 'C', 0x010B: 'c', 0x010C: 'C', 0x010D: 'c',
	0x010E: 'D', 0x010F: 'd',
	0x0112: 'E', 0x0113: 'e', 0x0114: 'E', 0x0115: 'e', 0x0116: 'E', 0x0117: 'e', 0x0118: 'E', 0x0119: 'e', 0x011A: 'E', 0x011B: 'e',
	0x011C: 'G', 0x011D: 'g', 0x011E: 'G', 0x011F: 'g', 0x0120: 'G', 0x0121: 'g', 0x0122: 'G', 0x0123: 'g',
	0x0124: 'H', 0x0125: 'h',
	0x0128: 'I', 0x0129: 'i', 0x012A: 'I', 0x012B: 'i', 0x012C: 'I', 0x012D: 'i', 0x012E: 'I', 0x012F: 'i',
	0x0134: 'J', 0x0135: 'j',
	0x0136: 'K', 0x0137: 'k',
	0x0139: 'L', 0x013A: 'l', 0x013B: 'L', 0x013C: 'l', 0x013D: 'L', 0x013E: 'l',
	0x0143: 'N', 0x0144: 'n', 0x0145: 'N', 0x0146: 'n', 0x0147: 'N', 0x0148: 'n',
	0x014C: 'O', 0x014D: 'o', 0x014E: 'O', 0x014F: 'o', 0x0150: 'O', 0x0151: 'o',
	0x0154: 'R', 0x0155: 'r', 0x0156: 'R', 0x0157: 'r', 0x0158: 'R', 0x0159: 'r',
	0x015A: 'S', 0x015B: 's', 0x015C: 'S', 0x015D: 's', 0x015E: 'S', 0x015F: 's', 0x0160: 'S', 0x0161: 's',
	0x0162: 'T', 0x0163: 't', 0x0164: 'T', 0x0165: 't',
	0x0168: 'U', 0x0169: 'u', 0x016A: 'U', 0x016B: 'u', 0x016C: 'U', 0x016D: 'u', 0x016E: 'U', 0x016F: 'u', 0x0170: 'U', 0x0171: 'u', 0x0172: 'U', 0x0173: 'u',
	0x0174: 'W', 0x0175: 'w',
	0x0176: 'Y', 0x0177: 'y', 0x0178: 'Y',
	0x0179: 'Z', 0x017A: 'z', 0x017B: 'Z', 0x017C: 'z', 0x017D: 'Z', 0x017E: 'z',
}

func foldAccent(r rune) rune {
	if b, ok := accentFold[r]; ok {
		return b
	}
	return r
}

// halfwidthKatakana maps halfwidth katakana (U+FF61..U+FF9F) to their
// fullwidth equivalent; voiced (U+FF9E) and semi-voiced (U+FF9F) marks
// combine with the preceding kana when adjacent, handled by
// foldPunctuation below since it needs two-rune lookahead.
var halfwidthKatakana = map[rune]rune{
	0xFF61: 0x3002, 0xFF62: 0x300C, 0xFF63: 0x300D, 0xFF64: 0x3001, 0xFF65: 0x30FB,
	0xFF66: 0x30F2, 0xFF67: 0x30A1, 0xFF68: 0x30A3, 0xFF69: 0x30A5, 0xFF6A: 0x30A7, 0xFF6B: 0x30A9,
	0xFF6C: 0x30E3, 0xFF6D: 0x30E5, 0xFF6E: 0x30E7, 0xFF6F: 0x30C3, 0xFF70: 0x30FC,
	0xFF71: 0x30A2, 0xFF72: 0x30A4, 0xFF73: 0x30A6, 0xFF74: 0x30A8, 0xFF75: 0x30AA,
	0xFF76: 0x30AB, 0xFF77: 0x30AD, 0xFF78: 0x30AF, 0xFF79: 0x30B1, 0xFF7A: 0x30B3,
	0xFF7B: 0x30B5, 0xFF7C: 0x30B7, 0xFF7D: 0x30B9, 0xFF7E: 0x30BB, 0xFF7F: 0x30BD,
	0xFF80: 0x30BF, 0xFF81: 0x30C1, 0xFF82: 0x30C4, 0xFF83: 0x30C6, 0xFF84: 0x30C8,
	0xFF85: 0x30CA, 0xFF86: 0x30CB, 0xFF87: 0x30CC, 0xFF88: 0x30CD, 0xFF89: 0x30CE,
	0xFF8A: 0x30CF, 0xFF8B: 0x30D2, 0xFF8C: 0x30D5, 0xFF8D: 0x30D8, 0xFF8E: 0x30DB,
	0xFF8F: 0x30DE, 0xFF90: 0x30DF, 0xFF91: 0x30E0, 0xFF92: 0x30E1, 0xFF93: 0x30E2,
	0xFF94: 0x30E4, 0xFF95: 0x30E6, 0xFF96: 0x30E8,
	0xFF97: 0x30E9, 0xFF98: 0x30EA, 0xFF99: 0x30EB, 0xFF9A: 0x30EC, 0xFF9B: 0x30ED,
	0xFF9C: 0x30EF, 0xFF9D: 0x30F3,
}

// voicedCombine maps a fullwidth kana base to its voiced-mark form (U+FF9E).
var voicedCombine = map[rune]rune{
	0x30AB: 0x30AC, 0x30AD: 0x30AE, 0x30AF: 0x30B0, 0x30B1: 0x30B2, 0x30B3: 0x30B4,
	0x30B5: 0x30B6, 0x30B7: 0x30B8, 0x30B9: 0x30BA, 0x30BB: 0x30BC, 0x30BD: 0x30BE,
	0x30BF: 0x30C0, 0x30C1: 0x30C2, 0x30C4: 0x30C5, 0x30C6: 0x30C7, 0x30C8: 0x30C9,
	0x30CF: 0x30D0, 0x30D2: 0x30D3, 0x30D5: 0x30D6, 0x30D8: 0x30D9, 0x30DB: 0x30DC,
	0x30A6: 0x30F4,
}

// semiVoicedCombine maps a fullwidth kana base to its semi-voiced-mark
// form (U+FF9F).
var semiVoicedCombine = map[rune]rune{
	0x30CF: 0x30D1, 0x30D2: 0x30D4, 0x30D5: 0x30D7, 0x30D8: 0x30DA, 0x30DB: 0x30DD,
}

func foldPunctuation(in []rune) []rune {
	out := make([]rune, 0, len(in))
	for i := 0; i < len(in); i++ {
		r := in[i]
		switch {
		case r == 0x3000, r == 0x2002, r == 0x2003, r == 0x2009:
			// CJK wide space, en space, em space, thin space -> ASCII space.
			out = append(out, ' ')
		case r >= 0xFF01 && r <= 0xFF5E:
			// Fullwidth ASCII block -> ASCII equivalent.
			out = append(out, r-0xFEE0)
		case r == 0xFF5F:
			out = append(out, '(')
		case r == 0xFF60:
			out = append(out, ')')
		case r >= 0xFF61 && r <= 0xFF9D:
			full, ok := halfwidthKatakana[r]
			if !ok {
				out = append(out, r)
				continue
			}
			if i+1 < len(in) {
				switch in[i+1] {
				case 0xFF9E:
					if v, ok := voicedCombine[full]; ok {
						out = append(out, v)
						i++
						continue
					}
				case 0xFF9F:
					if v, ok := semiVoicedCombine[full]; ok {
						out = append(out, v)
						i++
						continue
					}
				}
			}
			out = append(out, full)
		default:
			out = append(out, r)
		}
	}
	return out
}

// Idempotent is a test/debug helper: it reports whether normalizing s
// twice produces the same result as normalizing it once.
func Idempotent(s string, opts Options) bool {
	once := Text(s, opts)
	twice := Text(once, opts)
	return once == twice
}

// ContainsControlRunes reports whether s has any ASCII control
// characters, used by callers that want to short-circuit normalization
// of already-clean input. Not part of the pipeline itself.
func ContainsControlRunes(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		return r < 0x20 || r == 0x7F
	})
}
