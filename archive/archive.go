// Package archive packages an output directory as a zip file.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Options tunes compression.
type Options struct {
	// Level is a flate level; zero means flate.DefaultCompression.
	Level int
}

// ZipDir writes every regular file under dir into a zip at dst, with
// names relative to dir and in lexical order. The archive is assembled in
// a temporary file beside dst and renamed into place, so a reader never
// sees a partial archive. It returns the number of files written.
func ZipDir(ctx context.Context, dir, dst string, opts Options) (int, error) {
	files, err := list(dir)
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}

	level := opts.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := addFile(zw, dir, rel); err != nil {
			return fail(fmt.Errorf("archive: %s: %w", rel, err))
		}
	}
	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("archive: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("archive: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("archive: %w", err)
	}
	return len(files), nil
}

func list(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func addFile(zw *zip.Writer, dir, rel string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = rel
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
