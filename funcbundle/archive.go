package funcbundle

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact is a packaged, uploadable bundle archive.
type Artifact struct {
	Path   string
	SHA256 string
	Size   int64
}

// packageBundle builds a zip artifact from the manifest's include globs
// plus a generated requirements.txt, writing it to a temp file. The
// caller owns the file; Release removes it.
func packageBundle(dir string, m Manifest) (Artifact, error) {
	files, err := collectFiles(dir, m.Include)
	if err != nil {
		return Artifact{}, err
	}
	if len(files) == 0 {
		return Artifact{}, fmt.Errorf("bundle %q: include patterns matched no files", m.Name)
	}

	tmp, err := os.CreateTemp("", m.Name+"-*.zip")
	if err != nil {
		return Artifact{}, fmt.Errorf("create artifact: %w", err)
	}

	hash := sha256.New()
	zw := zip.NewWriter(io.MultiWriter(tmp, hash))

	reqs := strings.Join(m.Requirements, "\n") + "\n"
	if err := writeZipEntry(zw, "requirements.txt", []byte(reqs)); err != nil {
		cleanupArtifact(zw, tmp)
		return Artifact{}, err
	}

	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			cleanupArtifact(zw, tmp)
			return Artifact{}, fmt.Errorf("read %s: %w", rel, err)
		}
		if err := writeZipEntry(zw, filepath.ToSlash(rel), data); err != nil {
			cleanupArtifact(zw, tmp)
			return Artifact{}, err
		}
	}

	if err := zw.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		_ = tmp.Close()
		return Artifact{}, fmt.Errorf("finalize artifact: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		_ = os.Remove(tmp.Name())
		_ = tmp.Close()
		return Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return Artifact{}, fmt.Errorf("close artifact: %w", err)
	}

	return Artifact{
		Path:   tmp.Name(),
		SHA256: hex.EncodeToString(hash.Sum(nil)),
		Size:   info.Size(),
	}, nil
}

// collectFiles resolves the include globs relative to dir. requirements.txt
// is always generated from the manifest, so a source copy is skipped.
func collectFiles(dir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad include pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			rel, err := filepath.Rel(dir, match)
			if err != nil {
				continue
			}
			if rel == "requirements.txt" || rel == ManifestFile || seen[rel] {
				continue
			}
			seen[rel] = true
			files = append(files, rel)
		}
	}
	sort.Strings(files)
	return files, nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s to archive: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s to archive: %w", name, err)
	}
	return nil
}

func cleanupArtifact(zw *zip.Writer, tmp *os.File) {
	_ = zw.Close()
	_ = tmp.Close()
	_ = os.Remove(tmp.Name())
}
