package storage

import (
	"context"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Storage holds raw uploaded bytes by key.
type Storage interface {
	Store(ctx context.Context, key string, data io.Reader, contentType string) error
	Load(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key derives the object key for a document: "<documentID>_<filename>", with
// the filename reduced to a safe base name.
func Key(documentID uuid.UUID, filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return documentID.String() + "_" + name
}
