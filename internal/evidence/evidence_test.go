package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubStoreSave(t *testing.T) {
	s := StubStore{Now: func() time.Time { return time.UnixMilli(1700000000123) }}
	ref, err := s.Save(context.Background(), "note.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/justifications/1700000000123_note.pdf", ref)

	_, err = s.Save(context.Background(), "big.bin", make([]byte, MaxSize+1))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"note.pdf":             "note.pdf",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\scan.png`: "scan.png",
		"my scan.jpg":          "my_scan.jpg",
		"":                     "evidence",
		"/":                    "evidence",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanName(in), in)
	}
}
