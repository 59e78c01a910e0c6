package cache

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const (
	metaName  = "meta.json"
	logName   = "log"
	filesRoot = "files/"
)

// Encode serializes an entry into a gzipped tar archive. Equal entries
// always encode to equal bytes.
func Encode(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return nil, err
	}
	if err := writeTarFile(tw, metaName, 0o644, meta); err != nil {
		return nil, err
	}
	if err := writeTarFile(tw, logName, 0o644, e.Log); err != nil {
		return nil, err
	}

	files := append([]File(nil), e.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		if _, err := safeJoin(".", f.Path); err != nil {
			return nil, err
		}
		if err := writeTarFile(tw, filesRoot+f.Path, f.Mode, f.Content); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTarFile(tw *tar.Writer, name string, mode fs.FileMode, content []byte) error {
	if mode == 0 {
		mode = 0o644
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(mode.Perm()),
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0),
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

// Decode parses an archive produced by Encode.
func Decode(data []byte) (*Entry, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding artifact: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	e := &Entry{}
	sawMeta := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding artifact: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("decoding artifact: %w", err)
		}

		switch {
		case hdr.Name == metaName:
			if err := json.Unmarshal(content, &e.Meta); err != nil {
				return nil, fmt.Errorf("decoding artifact metadata: %w", err)
			}
			sawMeta = true
		case hdr.Name == logName:
			e.Log = content
		case strings.HasPrefix(hdr.Name, filesRoot):
			rel := strings.TrimPrefix(hdr.Name, filesRoot)
			if _, err := safeJoin(".", rel); err != nil {
				return nil, err
			}
			e.Files = append(e.Files, File{Path: rel, Mode: fs.FileMode(hdr.Mode).Perm(), Content: content})
		}
	}
	if !sawMeta {
		return nil, fmt.Errorf("decoding artifact: missing %s", metaName)
	}
	return e, nil
}
