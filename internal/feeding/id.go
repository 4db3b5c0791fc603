package feeding

import "github.com/google/uuid"

// IDProvider issues identifiers for new foods and meals.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
// UUIDv7 values sort by creation time, which keeps the id tie-break of the
// listing order aligned with created_at_ms.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
