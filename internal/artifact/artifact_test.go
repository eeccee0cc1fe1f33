package artifact_test

import (
	"errors"
	"testing"
	"time"

	"timelapse/internal/artifact"
)

func TestNameUsesUTCTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	created := time.Date(2024, 3, 9, 7, 5, 1, 0, loc)

	got := artifact.Name("07", created)
	want := "pic_07_2024-03-08_23-05-01.jpg"
	if got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}
}

func TestParseNameRoundTrip(t *testing.T) {
	created := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	item := artifact.New("cam_north", created, []byte{0xFF, 0xD8})

	device, ts, err := artifact.ParseName(item.Name)
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	if device != "cam_north" {
		t.Fatalf("device = %q", device)
	}
	if !ts.Equal(created) {
		t.Fatalf("timestamp = %v, want %v", ts, created)
	}
	if item.Size() != 2 {
		t.Fatalf("Size = %d", item.Size())
	}
}

func TestParseNameRejectsForeignNames(t *testing.T) {
	for _, name := range []string{
		"",
		"notes.txt",
		"pic_01.jpg",
		"pic__2024-01-01_00-00-00.jpg",
		"pic_01_2024-13-01_00-00-00.jpg",
		"pic_01_2024-01-01_00-00-00.png",
		".tmp-pic_01_2024-01-01_00-00-00.jpg-123",
	} {
		if _, _, err := artifact.ParseName(name); !errors.Is(err, artifact.ErrNotArtifact) {
			t.Errorf("ParseName(%q) err = %v, want ErrNotArtifact", name, err)
		}
	}
}
