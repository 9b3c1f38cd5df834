// Package naming derives collision-free, filesystem-safe names for stored
// artifacts from untrusted client filenames.
package naming

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// SuffixLen is the length of the random suffix appended to every name.
const SuffixLen = 8

// windowsDevices are names Windows refuses as files whatever the extension.
var windowsDevices = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"LPT1": true, "LPT2": true, "LPT3": true,
}

// Unique returns "base_suffix.ext", or "base_suffix" when original has no
// extension. The extension is lowercased, the base is sanitized with
// Secure and the suffix is 8 random hex characters.
func Unique(original string) string {
	base, ext := split(original)
	name := Secure(base) + "_" + random()
	if ext = Secure(strings.ToLower(ext)); ext != "" {
		name += "." + ext
	}
	return name
}

// Secure reduces name to characters safe on any filesystem: it is folded
// to ASCII, path separators become spaces, whitespace runs become single
// underscores and everything outside [A-Za-z0-9_.-] is dropped. Leading
// and trailing dots and underscores are trimmed. The result may be empty.
func Secure(name string) string {
	var sb strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r == '/' || r == '\\':
			sb.WriteByte(' ')
		case r < unicode.MaxASCII:
			sb.WriteRune(r)
		}
	}
	joined := strings.Join(strings.Fields(sb.String()), "_")
	var out strings.Builder
	for _, r := range joined {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-') {
			out.WriteRune(r)
		}
	}
	s := strings.Trim(out.String(), "._")
	if s != "" && windowsDevices[strings.ToUpper(strings.SplitN(s, ".", 2)[0])] {
		s = "_" + s
	}
	return s
}

// FolderID returns an 8 character hex id for an output directory.
func FolderID() string { return random() }

// Ext returns the lowercased extension of name without the dot.
func Ext(name string) string {
	_, ext := split(name)
	return strings.ToLower(ext)
}

func split(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || strings.ContainsAny(name[i:], `/\`) {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func random() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:SuffixLen]
}
