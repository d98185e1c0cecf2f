package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
)

// TreeBranch is one predicate group under an entity: the verb label and
// the counterpart lines beneath it.
type TreeBranch struct {
	Label  string
	Leaves []string
}

// RenderRelationshipTree renders an entity and its relationship groups
// as an indented tree. Branches render in the order given; a branch with
// no leaves is skipped.
func RenderRelationshipTree(root string, branches []TreeBranch) string {
	t := tree.New().Root(root)
	if ShouldUseColor() {
		t.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorMuted))
		t.RootStyle(lipgloss.NewStyle().Bold(true).Foreground(ColorAccent))
	}

	for _, b := range branches {
		if len(b.Leaves) == 0 {
			continue
		}
		child := tree.New().Root(b.Label)
		if ShouldUseColor() {
			child.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorMuted))
		}
		for _, leaf := range b.Leaves {
			child.Child(leaf)
		}
		t.Child(child)
	}
	return t.String()
}
