// Package util provides identifiers, human readable codes and clocks.
package util

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces record identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator issues time-ordered UUIDv7 identifiers for better index
// locality in SQLite.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7, falling back to a random UUID if the clock
// source fails.
func (UUIDv7Generator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewID generates a new UUIDv7 identifier.
func NewID() string {
	return UUIDv7Generator{}.NewID()
}

// ParseID validates and normalizes a UUID string.
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return id.String(), nil
}

// IsValidID checks if a string is a valid UUID format.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// SequenceGenerator hands out DeterministicID values in order. Tests use it
// to get predictable ids.
type SequenceGenerator struct {
	mu   sync.Mutex
	next int64
}

// NewSequenceGenerator starts a sequence at seed.
func NewSequenceGenerator(seed int64) *SequenceGenerator {
	return &SequenceGenerator{next: seed}
}

// NewID returns the next id in the sequence.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return DeterministicID(g.next)
}

// DeterministicID generates a deterministic ID for testing purposes.
// DO NOT use in production - use NewID() instead.
func DeterministicID(seed int64) string {
	var id [16]byte

	binary.BigEndian.PutUint64(id[0:8], uint64(seed))
	binary.BigEndian.PutUint64(id[8:16], uint64(seed*31))

	// Set version 4 and variant
	id[6] = (id[6] & 0x0F) | 0x40
	id[8] = (id[8] & 0x3F) | 0x80

	return uuid.UUID(id).String()
}
