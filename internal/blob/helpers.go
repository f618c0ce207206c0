package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// maxReadSize bounds ReadAll; catalog datasets and exports are small.
const maxReadSize = 16 << 20

// ReadAll fetches the whole blob at key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(io.LimitReader(rc, maxReadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	if len(b) > maxReadSize {
		return nil, fmt.Errorf("blob %s exceeds %d bytes", key, maxReadSize)
	}
	return b, nil
}

// Replace writes data at key, deleting any existing blob first.
func Replace(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	if _, err := s.Delete(ctx, key); err != nil {
		return Info{}, fmt.Errorf("delete %s: %w", key, err)
	}
	return s.Put(ctx, key, bytes.NewReader(data), opts)
}
