// Package ids issues the string identifiers used for ratings and batches.
package ids

import "github.com/google/uuid"

// Provider issues unique identifiers.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers, which sort by creation time.
func NewUUIDProvider() Provider {
	return uuidProvider{}
}

func (uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// IsWellFormed reports whether raw parses as a UUID.
func IsWellFormed(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}
