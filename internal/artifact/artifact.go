// Package artifact stores generated images under opaque `<uuid hex>.png` names.
package artifact

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("artifact: not found")
	ErrInvalidName = errors.New("artifact: invalid name")
)

type Store interface {
	// Put stores data and returns the generated artifact name.
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

var nameRE = regexp.MustCompile(`^[0-9a-f]{32}\.png$`)

func NewName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ".png"
}

// ValidName reports whether name looks like one NewName produced. Anything else,
// including path separators and "..", is rejected before touching storage.
func ValidName(name string) bool {
	return nameRE.MatchString(name)
}
