package connector

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/graph"
)

// FixReferences runs after a copy. original and copied must have the same
// shape. In the first pass every copied node that carried an identifier gets
// a fresh one, building an old-to-new table; the second pass rewrites
// reference values whose target is in the table. References to nodes outside
// the copied subtree are kept. Each changed node is written once.
func FixReferences(ws WritableWorkspace, original, copied *Tree) (map[uuid.UUID]uuid.UUID, error) {
	var pairs [][2]*Tree
	if err := pairUp(original, copied, &pairs); err != nil {
		return nil, err
	}

	mapping := make(map[uuid.UUID]uuid.UUID)
	updates := make(map[string]map[graph.Name]*graph.Property)
	order := make([]graph.Path, 0, len(pairs))

	update := func(p graph.Path) map[graph.Name]*graph.Property {
		key := p.String()
		m, ok := updates[key]
		if !ok {
			m = make(map[graph.Name]*graph.Property)
			updates[key] = m
			order = append(order, p)
		}
		return m
	}

	for _, pr := range pairs {
		oldID, ok := pr[0].Node.Identifier()
		if !ok {
			continue
		}
		newID := uuid.New()
		mapping[oldID] = newID
		update(pr[1].Node.Path())[graph.Identifier] = graph.NewProperty(graph.Identifier, newID)
	}

	for _, pr := range pairs {
		node := pr[1].Node
		for name, prop := range node.Properties() {
			if name == graph.Identifier || len(prop.References()) == 0 {
				continue
			}
			values, changed := remap(prop.Values(), mapping)
			if changed {
				update(node.Path())[name] = graph.NewProperty(name, values...)
			}
		}
	}

	for _, p := range order {
		if _, err := ws.SetProperties(p, updates[p.String()]); err != nil {
			return nil, fmt.Errorf("connector: fix references at %s: %w", p, err)
		}
	}
	return mapping, nil
}

func remap(values []any, mapping map[uuid.UUID]uuid.UUID) ([]any, bool) {
	changed := false
	for i, v := range values {
		ref, ok := v.(graph.Reference)
		if !ok {
			continue
		}
		if to, ok := mapping[ref.UUID()]; ok {
			values[i] = graph.NewReference(to)
			changed = true
		}
	}
	return values, changed
}

func pairUp(a, b *Tree, out *[][2]*Tree) error {
	if len(a.Children) != len(b.Children) {
		return fmt.Errorf("connector: copy of %s has %d children, original has %d",
			a.Node.Path(), len(b.Children), len(a.Children))
	}
	*out = append(*out, [2]*Tree{a, b})
	for i := range a.Children {
		if err := pairUp(a.Children[i], b.Children[i], out); err != nil {
			return err
		}
	}
	return nil
}
