package syncer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/syncer"
	"github.com/lherron/orgsync/internal/testutil"
)

func node(name string, children ...*domain.ClassificationNode) *domain.ClassificationNode {
	return &domain.ClassificationNode{Name: name, Children: children}
}

func TestSyncNodeTreeCreatesThenSkips(t *testing.T) {
	src, dst := newOrgs()
	src.SetTree(domain.StructureAreas, node("Team A", node("Sub 1")), node("Team B"))

	counts, err := newSession(t, src, dst).SyncNodeTree(context.Background(), domain.StructureAreas)
	require.NoError(t, err)
	assert.Equal(t, syncer.Counts{Migrated: 3}, counts)

	tree := dst.Tree(domain.StructureAreas)
	require.NotNil(t, tree.FindChild("Team A").FindChild("Sub 1"))
	require.NotNil(t, tree.FindChild("Team B"))

	counts, err = newSession(t, src, dst).SyncNodeTree(context.Background(), domain.StructureAreas)
	require.NoError(t, err)
	assert.Equal(t, syncer.Counts{Skipped: 3}, counts)
}

func TestSyncNodeTreeUpdatesChangedAttributes(t *testing.T) {
	src, dst := newOrgs()
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	finish := start.AddDate(0, 0, 13)
	sprint := node("Sprint 1")
	sprint.Attributes = &domain.NodeAttributes{StartDate: &start, FinishDate: &finish}
	src.SetTree(domain.StructureIterations, sprint)
	dst.SetTree(domain.StructureIterations, node("Sprint 1"))

	counts, err := newSession(t, src, dst).SyncNodeTree(context.Background(), domain.StructureIterations)
	require.NoError(t, err)
	assert.Equal(t, syncer.Counts{Migrated: 1}, counts)

	got := dst.Tree(domain.StructureIterations).FindChild("Sprint 1")
	require.NotNil(t, got.Attributes)
	assert.True(t, got.Attributes.Equal(sprint.Attributes))
}

func TestSyncNodeTreeCountsFailures(t *testing.T) {
	src, dst := newOrgs()
	src.SetTree(domain.StructureAreas, node("Team A", node("Sub 1")), node("Team B"))
	dst.Fail(testutil.OpCreateNode, errors.New("403 forbidden"))

	counts, err := newSession(t, src, dst).SyncNodeTree(context.Background(), domain.StructureAreas)
	require.NoError(t, err)
	assert.Equal(t, syncer.Counts{Errors: 2, Skipped: 1}, counts)
}

func TestSyncNodeTreeFailsWhenTreeUnreadable(t *testing.T) {
	src, dst := newOrgs()
	src.Fail(testutil.OpGetNodes, errors.New("401 unauthorized"))

	_, err := newSession(t, src, dst).SyncNodeTree(context.Background(), domain.StructureAreas)
	require.Error(t, err)
}
