package settings

import (
	"context"
	"strings"
)

// NewStore returns a postgres-backed store when databaseURL is set, a YAML
// file store when filePath is set, and an in-memory store otherwise.
func NewStore(ctx context.Context, databaseURL, filePath string) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	if strings.TrimSpace(filePath) != "" {
		return NewFileStore(filePath)
	}
	return NewInMemoryStore(Defaults()), nil
}
