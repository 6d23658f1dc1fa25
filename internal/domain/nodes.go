package domain

import (
	"fmt"
	"strings"
	"time"
)

// StructureGroup is one of the two classification hierarchies.
type StructureGroup string

const (
	StructureAreas      StructureGroup = "areas"
	StructureIterations StructureGroup = "iterations"
)

// ParseStructureGroup accepts the common spellings of a structure group.
func ParseStructureGroup(s string) (StructureGroup, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "area", "areas":
		return StructureAreas, nil
	case "iteration", "iterations":
		return StructureIterations, nil
	default:
		return "", fmt.Errorf("invalid structure group %q: must be areas or iterations", s)
	}
}

// PathSegment returns the REST path segment for the group.
func (g StructureGroup) PathSegment() string {
	if g == StructureIterations {
		return "Iterations"
	}
	return "Areas"
}

// StructureType returns the node structure type for the group.
func (g StructureGroup) StructureType() string {
	if g == StructureIterations {
		return "iteration"
	}
	return "area"
}

// NodeAttributes are the optional schedule attributes of iteration nodes.
type NodeAttributes struct {
	StartDate  *time.Time `json:"startDate,omitempty"`
	FinishDate *time.Time `json:"finishDate,omitempty"`
}

// IsZero reports whether no attribute is set.
func (a *NodeAttributes) IsZero() bool {
	return a == nil || (a.StartDate == nil && a.FinishDate == nil)
}

// Equal compares attributes field by field. Nil and empty are equal.
func (a *NodeAttributes) Equal(b *NodeAttributes) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	return timeEqual(a.StartDate, b.StartDate) && timeEqual(a.FinishDate, b.FinishDate)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ClassificationNode is an area or iteration tree node.
type ClassificationNode struct {
	ID            int
	Name          string
	StructureType string
	Path          string
	Attributes    *NodeAttributes
	Children      []*ClassificationNode
}

// FindChild returns the direct child with exactly the given name.
func (n *ClassificationNode) FindChild(name string) *ClassificationNode {
	if n == nil {
		return nil
	}
	return FindNode(n.Children, name)
}

// FindNode returns the sibling with exactly the given name.
func FindNode(siblings []*ClassificationNode, name string) *ClassificationNode {
	for _, s := range siblings {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// JoinNodePath joins a parent path and a node name with the REST separator.
func JoinNodePath(parent, name string) string {
	parent = strings.Trim(parent, "/")
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
