package hostlink

import (
	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/visual"
)

// Message types.
const (
	TypeTick     = "tick"
	TypeGrab     = "grab"
	TypePose     = "pose"
	TypeFrame    = "frame"
	TypeEntities = "entities"
	TypeError    = "error"
)

// Grab edges.
const (
	EdgeStart = "start"
	EdgeEnd   = "end"
)

// Inbound is any message from the host. Fields not used by Type are ignored.
// Rotation is a unit quaternion as [w, x, y, z].
type Inbound struct {
	Type     string          `json:"type"`
	DeltaMs  float64         `json:"delta_ms,omitempty"`
	Entity   models.EntityID `json:"entity,omitempty"`
	Edge     string          `json:"edge,omitempty"`
	Position *[3]float64     `json:"position,omitempty"`
	Rotation *[4]float64     `json:"rotation,omitempty"`
}

// Frame carries the visual tree rendered for a frame.
type Frame struct {
	Type  string       `json:"type"`
	Frame uint64       `json:"frame"`
	Root  *visual.Node `json:"root"`
}

// Entities is sent once on connect so the host can bind its grab volumes and
// tracked poses to entity ids.
type Entities struct {
	Type  string          `json:"type"`
	Tool  models.EntityID `json:"tool"`
	Base  models.EntityID `json:"base"`
	Heads []HeadEntity    `json:"heads"`
}

// HeadEntity lists the entities of one head.
type HeadEntity struct {
	Name      string          `json:"name"`
	Interface string          `json:"interface"`
	Entity    models.EntityID `json:"entity"`
	Indicator models.EntityID `json:"indicator"`
}

// Error answers a message that could not be applied.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
