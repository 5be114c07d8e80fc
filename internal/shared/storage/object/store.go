package object

import (
	"context"
	"io"
	"path"
	"strings"
)

// ObjectStore holds CSV inputs and downloaded analysis artifacts.
type ObjectStore interface {
	// SaveWithKey writes r at key, replacing any existing object.
	SaveWithKey(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Locator is implemented by stores that can say where an object lives.
type Locator interface {
	Location(key string) string
}

// LocationOf returns where key lives in store, or key itself when the store
// cannot tell.
func LocationOf(store ObjectStore, key string) string {
	if l, ok := store.(Locator); ok {
		return l.Location(key)
	}
	return key
}

const inputsPrefix = "inputs"

// InputKey returns the storage key for a staged CSV identified by its content hash.
func InputKey(contentHash, fileName string) string {
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(fileName, "\\", "/")), path.Ext(fileName))
	if base == "" || base == "." || base == "/" {
		base = "input"
	}
	return path.Join(inputsPrefix, contentHash[:min(len(contentHash), 16)]+"_"+base+".csv")
}
