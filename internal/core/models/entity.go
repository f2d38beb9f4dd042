package models

import (
	"strconv"
	"sync/atomic"
)

// EntityID addresses a spatial entity in the scene graph. It is unique for the
// life of the process and never reused.
type EntityID uint64

// NoEntity is the zero id; no entity is ever allocated with it.
const NoEntity EntityID = 0

func (id EntityID) String() string {
	if id == NoEntity {
		return "none"
	}
	return "ent-" + strconv.FormatUint(uint64(id), 10)
}

// Valid reports whether the id can address an entity.
func (id EntityID) Valid() bool {
	return id != NoEntity
}

var lastEntityID atomic.Uint64

// NextEntityID allocates a fresh id.
func NextEntityID() EntityID {
	return EntityID(lastEntityID.Add(1))
}
