// Package scene is an in-process scene graph of spatial entities. Each entity
// has an optional parent and a pose local to it; world poses are composed on
// demand. A Graph is driven from the frame loop and is not safe for
// concurrent use.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/spatial"
)

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrCycle         = errors.New("entity cannot be its own ancestor")
)

type node struct {
	id       models.EntityID
	name     string
	parent   models.EntityID
	local    spatial.Pose
	children []models.EntityID
}

// Graph owns every spatial entity it creates.
type Graph struct {
	nodes     map[models.EntityID]*node
	onRemoved []func(models.EntityID)
}

func New() *Graph {
	return &Graph{nodes: make(map[models.EntityID]*node)}
}

// Create adds an entity under parent (models.NoEntity for a root).
func (g *Graph) Create(name string, parent models.EntityID, local spatial.Pose) (models.EntityID, error) {
	if parent.Valid() {
		if _, ok := g.nodes[parent]; !ok {
			return models.NoEntity, fmt.Errorf("create %q under %s: %w", name, parent, ErrUnknownEntity)
		}
	}
	id := models.NextEntityID()
	g.nodes[id] = &node{id: id, name: name, parent: parent, local: local}
	if parent.Valid() {
		p := g.nodes[parent]
		p.children = append(p.children, id)
	}
	return id, nil
}

func (g *Graph) Present(id models.EntityID) bool {
	_, ok := g.nodes[id]
	return ok
}

func (g *Graph) Name(id models.EntityID) string {
	if n, ok := g.nodes[id]; ok {
		return n.name
	}
	return ""
}

func (g *Graph) Parent(id models.EntityID) models.EntityID {
	if n, ok := g.nodes[id]; ok {
		return n.parent
	}
	return models.NoEntity
}

// Children returns the direct children of id in creation order.
func (g *Graph) Children(id models.EntityID) []models.EntityID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]models.EntityID, len(n.children))
	copy(out, n.children)
	return out
}

// Entities returns every present id in ascending order.
func (g *Graph) Entities() []models.EntityID {
	out := make([]models.EntityID, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Find returns the first entity with the given name, lowest id first.
func (g *Graph) Find(name string) (models.EntityID, bool) {
	for _, id := range g.Entities() {
		if g.nodes[id].name == name {
			return id, true
		}
	}
	return models.NoEntity, false
}

func (g *Graph) Local(id models.EntityID) (spatial.Pose, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return spatial.Pose{}, false
	}
	return n.local, true
}

func (g *Graph) SetLocal(id models.EntityID, local spatial.Pose) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("set local pose of %s: %w", id, ErrUnknownEntity)
	}
	n.local = local
	return nil
}

// World composes the pose of id with all of its ancestors.
func (g *Graph) World(id models.EntityID) (spatial.Pose, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return spatial.Pose{}, false
	}
	if !n.parent.Valid() {
		return n.local, true
	}
	parent, ok := g.World(n.parent)
	if !ok {
		return spatial.Pose{}, false
	}
	return parent.Mul(n.local), true
}

// SetWorld places id at a world pose by rewriting its local pose relative to
// its parent. The grab primitive moves held entities this way.
func (g *Graph) SetWorld(id models.EntityID, world spatial.Pose) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("set world pose of %s: %w", id, ErrUnknownEntity)
	}
	if !n.parent.Valid() {
		n.local = world
		return nil
	}
	parent, _ := g.World(n.parent)
	n.local = parent.Inverse().Mul(world)
	return nil
}

// Reparent moves id under parent while keeping its world pose.
func (g *Graph) Reparent(id, parent models.EntityID) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("reparent %s: %w", id, ErrUnknownEntity)
	}
	if parent.Valid() {
		if _, ok = g.nodes[parent]; !ok {
			return fmt.Errorf("reparent %s under %s: %w", id, parent, ErrUnknownEntity)
		}
		for a := parent; a.Valid(); a = g.nodes[a].parent {
			if a == id {
				return fmt.Errorf("reparent %s under %s: %w", id, parent, ErrCycle)
			}
		}
	}
	world, _ := g.World(id)
	g.detach(n)
	n.parent = parent
	if parent.Valid() {
		p := g.nodes[parent]
		p.children = append(p.children, id)
	}
	return g.SetWorld(id, world)
}

// OnRemoved registers a teardown callback, invoked once per removed entity.
func (g *Graph) OnRemoved(fn func(models.EntityID)) {
	g.onRemoved = append(g.onRemoved, fn)
}

// Remove tears down id and its whole subtree. Descendants are removed and
// reported before their ancestors.
func (g *Graph) Remove(id models.EntityID) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownEntity)
	}
	g.detach(n)
	g.removeSubtree(n)
	return nil
}

func (g *Graph) removeSubtree(n *node) {
	for _, child := range n.children {
		if c, ok := g.nodes[child]; ok {
			g.removeSubtree(c)
		}
	}
	delete(g.nodes, n.id)
	for _, fn := range g.onRemoved {
		fn(n.id)
	}
}

func (g *Graph) detach(n *node) {
	if !n.parent.Valid() {
		return
	}
	p, ok := g.nodes[n.parent]
	if !ok {
		return
	}
	for i, c := range p.children {
		if c == n.id {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
}
