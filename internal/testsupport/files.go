package testsupport

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern and sets its mtime. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64, mtime time.Time) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
}

// JPEG returns a small solid-gray JPEG of the requested luma.
func JPEG(t testing.TB, luma uint8) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = luma
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	// image/jpeg omits the JFIF APP0 segment that camera encoders emit.
	encoded := buf.Bytes()
	out := make([]byte, 0, len(encoded)+len(jfifAPP0))
	out = append(out, encoded[:2]...)
	out = append(out, jfifAPP0...)
	return append(out, encoded[2:]...)
}

var jfifAPP0 = []byte{
	0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00,
	0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00,
}
