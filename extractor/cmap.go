package extractor

import (
	"bufio"
	"bytes"
	"sort"
	"strings"
	"unicode/utf16"
)

// cmapKey identifies a character code by value and byte length; <0041>
// and <41> are different codes.
type cmapKey struct {
	code int
	n    int
}

// toUnicodeMap is a parsed ToUnicode CMap.
type toUnicodeMap struct {
	entries map[cmapKey]string
	lengths []int // code lengths, longest first
}

func parseToUnicodeCMap(data []byte) *toUnicodeMap {
	lines := bufio.NewScanner(bytes.NewReader(data))
	lines.Buffer(make([]byte, 64*1024), 1<<20)
	m := &toUnicodeMap{entries: make(map[cmapKey]string)}
	lengthSet := make(map[int]struct{})
	state := ""
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		switch {
		case strings.HasSuffix(line, "begincodespacerange"):
			state = "codespace"
			continue
		case strings.HasSuffix(line, "beginbfchar"):
			state = "bfchar"
			continue
		case strings.HasSuffix(line, "beginbfrange"):
			state = "bfrange"
			continue
		case strings.HasPrefix(line, "end"):
			state = ""
			continue
		}
		switch state {
		case "codespace":
			hexes := extractHexTokens(line)
			for i := 0; i+1 < len(hexes); i += 2 {
				if b := hexToBytes(hexes[i]); len(b) > 0 {
					lengthSet[len(b)] = struct{}{}
				}
			}
		case "bfchar":
			hexes := extractHexTokens(line)
			for i := 0; i+1 < len(hexes); i += 2 {
				src := hexToBytes(hexes[i])
				if len(src) == 0 {
					continue
				}
				m.entries[cmapKey{bytesToInt(src), len(src)}] = decodeUTF16BE(hexToBytes(hexes[i+1]))
				lengthSet[len(src)] = struct{}{}
			}
		case "bfrange":
			line = accumulateUntil(line, lines)
			hexes := extractHexTokens(line)
			if len(hexes) < 3 {
				continue
			}
			srcStart := hexToBytes(hexes[0])
			n := len(srcStart)
			if n == 0 {
				continue
			}
			lengthSet[n] = struct{}{}
			lo, hi := bytesToInt(srcStart), bytesToInt(hexToBytes(hexes[1]))
			if hi-lo > 0xFFFF {
				continue
			}
			if strings.Contains(line, "[") {
				for i := 0; i <= hi-lo && 2+i < len(hexes); i++ {
					m.entries[cmapKey{lo + i, n}] = decodeUTF16BE(hexToBytes(hexes[2+i]))
				}
				continue
			}
			dst := hexToBytes(hexes[2])
			if len(dst) == 0 {
				continue
			}
			for i := 0; i <= hi-lo; i++ {
				m.entries[cmapKey{lo + i, n}] = decodeUTF16BE(incrementLast(dst, i))
			}
		}
	}
	if len(lengthSet) == 0 {
		for k := range m.entries {
			lengthSet[k.n] = struct{}{}
		}
	}
	for l := range lengthSet {
		m.lengths = append(m.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(m.lengths)))
	return m
}

// lookup finds the mapping for the code at the start of data, trying the
// longest code length first.
func (m *toUnicodeMap) lookup(data []byte) (string, int, bool) {
	for _, l := range m.lengths {
		if len(data) < l {
			continue
		}
		if s, ok := m.entries[cmapKey{bytesToInt(data[:l]), l}]; ok {
			return s, l, true
		}
	}
	return "", 0, false
}

// incrementLast adds i to the trailing code unit of a bfrange destination.
func incrementLast(dst []byte, i int) []byte {
	if len(dst) <= 4 {
		return intToBytes(bytesToInt(dst)+i, len(dst))
	}
	d := append([]byte(nil), dst...)
	tail := d[len(d)-2:]
	copy(tail, intToBytes(bytesToInt(tail)+i, 2))
	return d
}

func accumulateUntil(line string, lines *bufio.Scanner) string {
	if !strings.Contains(line, "[") || strings.Contains(line, "]") {
		return line
	}
	for lines.Scan() {
		next := strings.TrimSpace(lines.Text())
		line += " " + next
		if strings.Contains(next, "]") {
			break
		}
	}
	return line
}

func extractHexTokens(line string) []string {
	var tokens []string
	for {
		start := strings.Index(line, "<")
		if start == -1 {
			break
		}
		end := strings.Index(line[start+1:], ">")
		if end == -1 {
			break
		}
		segment := line[start+1 : start+1+end]
		tokens = append(tokens, strings.Join(strings.Fields(segment), ""))
		line = line[start+1+end+1:]
	}
	return tokens
}

func hexToBytes(hex string) []byte {
	if len(hex)%2 == 1 {
		hex += "0"
	}
	out := make([]byte, len(hex)/2)
	for i := 0; i < len(hex); i += 2 {
		out[i/2] = (fromHexChar(hex[i]) << 4) | fromHexChar(hex[i+1])
	}
	return out
}

func fromHexChar(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func bytesToInt(b []byte) int {
	val := 0
	for _, by := range b {
		val = (val << 8) | int(by)
	}
	return val
}

func intToBytes(value int, length int) []byte {
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(value & 0xFF)
		value >>= 8
	}
	return buf
}

// decodeUTF16BE decodes CMap destination strings, which are UTF-16BE.
// A leading byte-order mark is dropped.
func decodeUTF16BE(data []byte) string {
	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		data = data[2:]
	}
	if len(data)%2 == 1 {
		data = append(data, 0)
	}
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(units))
}
