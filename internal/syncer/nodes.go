package syncer

import (
	"context"
	"fmt"

	"github.com/lherron/orgsync/internal/domain"
)

// SyncNodeTree replicates one classification group. Reading either tree is
// the only failure that aborts the group.
func (s *Session) SyncNodeTree(ctx context.Context, group domain.StructureGroup) (Counts, error) {
	src, err := s.Source.GetNodeTree(ctx, group)
	if err != nil {
		return Counts{}, fmt.Errorf("read source %s: %w", group, err)
	}
	dst, err := s.Target.GetNodeTree(ctx, group)
	if err != nil {
		return Counts{}, fmt.Errorf("read target %s: %w", group, err)
	}

	var total Counts
	for _, child := range src.Children {
		total.Add(s.SyncNode(ctx, group, child, dst.Children, ""))
	}
	s.log.Infof("%s: %d created or updated, %d unchanged, %d errors",
		group, total.Migrated, total.Skipped, total.Errors)
	return total, nil
}

// SyncNode replicates node and its subtree under parentPath, matching
// existing target nodes by exact name among targetSiblings.
func (s *Session) SyncNode(ctx context.Context, group domain.StructureGroup, node *domain.ClassificationNode, targetSiblings []*domain.ClassificationNode, parentPath string) Counts {
	var counts Counts
	path := domain.JoinNodePath(parentPath, node.Name)
	key := string(group) + ":" + path

	match := domain.FindNode(targetSiblings, node.Name)
	switch {
	case match == nil:
		created, err := s.Target.CreateNode(ctx, group, parentPath, &domain.ClassificationNode{
			Name:       node.Name,
			Attributes: node.Attributes,
		})
		if err != nil {
			s.warn("%s: create: %v", key, err)
			s.record(Outcome{Unit: UnitNode, SourceKey: key, Status: StatusError, Err: err})
			counts.Errors++
			counts.Skipped += countDescendants(node)
			return counts
		}
		s.record(Outcome{Unit: UnitNode, SourceKey: key, TargetRef: path, Status: StatusMigrated})
		counts.Migrated++
		match = created

	case !match.Attributes.Equal(node.Attributes):
		if err := s.Target.UpdateNode(ctx, group, path, node.Attributes); err != nil {
			s.warn("%s: update attributes: %v", key, err)
			s.record(Outcome{Unit: UnitNode, SourceKey: key, Status: StatusError, Err: err})
			counts.Errors++
		} else {
			s.record(Outcome{Unit: UnitNode, SourceKey: key, TargetRef: path, Status: StatusMigrated})
			counts.Migrated++
		}

	default:
		s.record(Outcome{Unit: UnitNode, SourceKey: key, TargetRef: path, Status: StatusSkipped})
		counts.Skipped++
	}

	for _, child := range node.Children {
		counts.Add(s.SyncNode(ctx, group, child, match.Children, path))
	}
	return counts
}

func countDescendants(n *domain.ClassificationNode) int {
	total := 0
	for _, c := range n.Children {
		total += 1 + countDescendants(c)
	}
	return total
}
