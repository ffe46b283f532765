// Package evidence stores files attached to justifications and returns an
// opaque reference to them.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// MaxSize bounds an uploaded evidence file.
const MaxSize = 5 << 20

var ErrTooLarge = errors.New("evidence file exceeds 5 MiB")

// Store persists evidence and returns a reference to it.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// StubStore records nothing and returns a synthetic path
// "/uploads/justifications/<unix ms>_<name>".
type StubStore struct {
	Now func() time.Time
}

func (s StubStore) Save(_ context.Context, name string, data []byte) (string, error) {
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return fmt.Sprintf("/uploads/justifications/%d_%s", now().UnixMilli(), CleanName(name)), nil
}

// CleanName strips directories and whitespace from a client-supplied file name.
func CleanName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "." || name == "/" || name == "" {
		return "evidence"
	}
	return name
}
