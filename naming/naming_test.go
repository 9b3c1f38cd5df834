package naming

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var safe = regexp.MustCompile(`^[A-Za-z0-9_.-]*$`)

func TestUnique(t *testing.T) {
	cases := []struct {
		in, prefix, ext string
	}{
		{"Report.PDF", "Report_", ".pdf"},
		{"my file.docx", "my_file_", ".docx"},
		{"../../etc/passwd", "etc_passwd_", ""},
		{"résumé.pdf", "resume_", ".pdf"},
		{"archive.tar.gz", "archive.tar_", ".gz"},
		{"", "_", ""},
		{".pdf", "_", ".pdf"},
		{"dir.v2/file", "dir.v2_file_", ""},
		{"con.txt", "_con_", ".txt"},
	}
	for _, tc := range cases {
		got := Unique(tc.in)
		assert.True(t, strings.HasPrefix(got, tc.prefix), "%q -> %q", tc.in, got)
		assert.True(t, strings.HasSuffix(got, tc.ext), "%q -> %q", tc.in, got)
		assert.Len(t, got, len(tc.prefix)+SuffixLen+len(tc.ext), "%q -> %q", tc.in, got)
	}
}

func TestSecure(t *testing.T) {
	assert.Equal(t, "My_cool_movie.mov", Secure("My cool movie.mov"))
	assert.Equal(t, "etc_passwd", Secure("../../../etc/passwd"))
	assert.Equal(t, "i_contain_cool_umlauts.txt", Secure("i contain cool ümläuts.txt"))
	assert.Equal(t, "", Secure("..."))
}

func TestExtAndFolderID(t *testing.T) {
	assert.Equal(t, "pdf", Ext("A.B.PDF"))
	assert.Equal(t, "", Ext("README"))
	assert.Regexp(t, `^[0-9a-f]{8}$`, FolderID())
	assert.NotEqual(t, FolderID(), FolderID())
}

func TestUniqueProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.String().Draw(t, "name")
		a, b := Unique(in), Unique(in)
		if a == b {
			t.Fatalf("two names for %q collided: %q", in, a)
		}
		if !safe.MatchString(a) || strings.HasPrefix(a, ".") {
			t.Fatalf("unsafe name %q for %q", a, in)
		}
		if strings.ContainsAny(a, `/\`) {
			t.Fatalf("separator in %q", a)
		}
	})
}
