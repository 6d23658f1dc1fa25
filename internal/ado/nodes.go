package ado

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lherron/orgsync/internal/domain"
)

type wireNode struct {
	ID            int                    `json:"id"`
	Name          string                 `json:"name"`
	StructureType string                 `json:"structureType"`
	Path          string                 `json:"path"`
	Attributes    *domain.NodeAttributes `json:"attributes,omitempty"`
	Children      []*wireNode            `json:"children,omitempty"`
}

func (w *wireNode) toDomain() *domain.ClassificationNode {
	n := &domain.ClassificationNode{
		ID:            w.ID,
		Name:          w.Name,
		StructureType: w.StructureType,
		Path:          w.Path,
		Attributes:    w.Attributes,
	}
	for _, child := range w.Children {
		n.Children = append(n.Children, child.toDomain())
	}
	return n
}

func nodePath(group domain.StructureGroup, path string) string {
	p := "wit/classificationnodes/" + group.PathSegment()
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			p += "/" + url.PathEscape(seg)
		}
	}
	return p
}

// GetNodeTree reads the whole tree of a group.
func (c *Client) GetNodeTree(ctx context.Context, group domain.StructureGroup) (*domain.ClassificationNode, error) {
	q := url.Values{"$depth": {"100"}}
	var out wireNode
	if err := c.do(ctx, http.MethodGet, c.projectURL(nodePath(group, ""), q), "", nil, &out); err != nil {
		return nil, fmt.Errorf("get %s tree: %w", group, err)
	}
	return out.toDomain(), nil
}

// CreateNode creates a node under parentPath.
func (c *Client) CreateNode(ctx context.Context, group domain.StructureGroup, parentPath string, node *domain.ClassificationNode) (*domain.ClassificationNode, error) {
	in := wireNode{Name: node.Name}
	if !node.Attributes.IsZero() {
		in.Attributes = node.Attributes
	}
	var out wireNode
	if err := c.do(ctx, http.MethodPost, c.projectURL(nodePath(group, parentPath), nil), contentJSON, in, &out); err != nil {
		return nil, fmt.Errorf("create %s node %q: %w", group, domain.JoinNodePath(parentPath, node.Name), err)
	}
	return out.toDomain(), nil
}

// UpdateNode replaces the attributes of the node at path.
func (c *Client) UpdateNode(ctx context.Context, group domain.StructureGroup, path string, attrs *domain.NodeAttributes) error {
	if attrs == nil {
		attrs = &domain.NodeAttributes{}
	}
	in := map[string]any{"attributes": attrs}
	if err := c.do(ctx, http.MethodPatch, c.projectURL(nodePath(group, path), nil), contentJSON, in, nil); err != nil {
		return fmt.Errorf("update %s node %q: %w", group, path, err)
	}
	return nil
}
