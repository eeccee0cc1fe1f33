// Package artifact defines the capture item handed from the producer through
// the relay queue to the upload workers and the overflow store.
package artifact

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	namePrefix = "pic_"
	nameSuffix = ".jpg"
	// TimestampLayout is the UTC capture time as it appears in artifact names.
	TimestampLayout = "2006-01-02_15-04-05"
)

// ErrNotArtifact is returned by ParseName for names that were not produced by Name.
var ErrNotArtifact = errors.New("not an artifact name")

// Item is one captured frame. It is never mutated after the producer creates
// it; ownership moves from queue to worker to store.
type Item struct {
	Name      string
	Payload   []byte
	CreatedAt time.Time
}

// New builds an item named from deviceID and the capture time.
func New(deviceID string, createdAt time.Time, payload []byte) Item {
	return Item{
		Name:      Name(deviceID, createdAt),
		Payload:   payload,
		CreatedAt: createdAt,
	}
}

// Size returns the payload length in bytes.
func (i Item) Size() int64 {
	return int64(len(i.Payload))
}

// Name returns the delivery filename for a capture: pic_<device>_<UTC time>.jpg.
// The name doubles as the collector's idempotency key.
func Name(deviceID string, createdAt time.Time) string {
	return namePrefix + deviceID + "_" + createdAt.UTC().Format(TimestampLayout) + nameSuffix
}

// ParseName recovers the device id and capture time from an artifact name.
func ParseName(name string) (deviceID string, createdAt time.Time, err error) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrNotArtifact, name)
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	if len(core) < len(TimestampLayout)+2 || core[len(core)-len(TimestampLayout)-1] != '_' {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrNotArtifact, name)
	}
	deviceID = core[:len(core)-len(TimestampLayout)-1]
	createdAt, err = time.ParseInLocation(TimestampLayout, core[len(core)-len(TimestampLayout):], time.UTC)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %q: %v", ErrNotArtifact, name, err)
	}
	return deviceID, createdAt, nil
}
