package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempPrefix marks in-progress writes. Directory scans must ignore names with
// this prefix; RemoveTemps deletes leftovers after a crash.
const TempPrefix = ".tmp-"

// WriteFileAtomic writes data to dir/name through a synced temp file and a
// rename, so readers only ever observe complete files. An existing file with
// the same name is replaced.
func WriteFileAtomic(dir, name string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(dir, TempPrefix+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	written, err := tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if written != len(data) {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write size mismatch: wrote %d of %d bytes", written, len(data))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	syncDir(dir)
	return nil
}

// VerifyContent reports whether path holds exactly data, comparing size and
// SHA256 digest.
func VerifyContent(path string, data []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(got) != len(data) {
		return fmt.Errorf("size mismatch: on disk %d bytes, expected %d bytes", len(got), len(data))
	}
	want := sha256.Sum256(data)
	have := sha256.Sum256(got)
	if !bytes.Equal(want[:], have[:]) {
		return fmt.Errorf("hash mismatch: %s corrupted", filepath.Base(path))
	}
	return nil
}

// RemoveTemps deletes leftover temp files in dir and returns how many were removed.
func RemoveTemps(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), TempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// IsTemp reports whether name is an in-progress write.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
