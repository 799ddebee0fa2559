package app

import "github.com/google/uuid"

// newGameID returns a random UUIDv4 string.
func newGameID() string { return uuid.NewString() }

// ValidPlayerID reports whether id looks like a player cookie issued by the web layer.
func ValidPlayerID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
