package store

import "errors"

var (
	// ErrNotFound is returned by operations that require an existing chunk id.
	ErrNotFound = errors.New("chunk not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")

	// ErrVectorDisabled is returned by semantic search when the store was
	// opened without a vector index. There is no text-search counterpart:
	// with FTS off, FullTextSearch degrades to substring matching instead.
	ErrVectorDisabled = errors.New("vector index disabled")
)
