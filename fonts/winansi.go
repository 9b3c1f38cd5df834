package fonts

// winAnsiHigh maps bytes 0x80-0x9F; the rest of 0xA0-0xFF is Latin-1.
var winAnsiHigh = [32]rune{
	0x20AC, 0, 0x201A, 0x0192, 0x201E, 0x2026, 0x2020, 0x2021,
	0x02C6, 0x2030, 0x0160, 0x2039, 0x0152, 0, 0x017D, 0,
	0, 0x2018, 0x2019, 0x201C, 0x201D, 0x2022, 0x2013, 0x2014,
	0x02DC, 0x2122, 0x0161, 0x203A, 0x0153, 0, 0x017E, 0x0178,
}

var winAnsiReverse = func() map[rune]byte {
	m := make(map[rune]byte, 27)
	for i, r := range winAnsiHigh {
		if r != 0 {
			m[r] = byte(0x80 + i)
		}
	}
	return m
}()

// WinAnsiRune decodes one WinAnsiEncoding byte. Undefined codes map to
// U+FFFD.
func WinAnsiRune(b byte) rune {
	switch {
	case b < 0x80:
		return rune(b)
	case b < 0xA0:
		if r := winAnsiHigh[b-0x80]; r != 0 {
			return r
		}
		return 0xFFFD
	}
	return rune(b)
}

// EncodeWinAnsi converts s to WinAnsiEncoding; unmappable runes become '?'.
func EncodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == '\t':
			out = append(out, ' ')
		case r < 0x80:
			out = append(out, byte(r))
		case r >= 0xA0 && r <= 0xFF:
			out = append(out, byte(r))
		default:
			if b, ok := winAnsiReverse[r]; ok {
				out = append(out, b)
			} else {
				out = append(out, '?')
			}
		}
	}
	return out
}

// DecodeWinAnsi is the inverse of EncodeWinAnsi.
func DecodeWinAnsi(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = WinAnsiRune(c)
	}
	return string(rs)
}
