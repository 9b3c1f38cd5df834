package scanner

import (
	"testing"
)

func FuzzScanner(f *testing.F) {
	f.Add([]byte("<< /Type /Page >>"))
	f.Add([]byte("[ 1 2 3 ]"))
	f.Add([]byte("stream\n...data...\nendstream"))
	f.Add([]byte("(Hello World)"))
	f.Add([]byte("<AABBCC>"))
	f.Add([]byte("12 0 R /N#20x"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s := New(data)
		for i := 0; i < 10000; i++ {
			tok, err := s.Next()
			if err != nil {
				break
			}
			if tok.Type == TokenKeyword && tok.Str == "stream" {
				if _, err := s.StreamData(-1); err != nil {
					break
				}
			}
		}
	})
}
