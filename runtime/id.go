package musicapi

import "github.com/oklog/ulid/v2"

// IDGenerator provides request and span identifiers.
type IDGenerator interface {
	NewID() string
}

// ULIDGenerator generates lexically sortable ULIDs.
type ULIDGenerator struct{}

func (ULIDGenerator) NewID() string {
	return ulid.Make().String()
}
