package syncer

import (
	"context"
	"io"

	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/patch"
)

// WorkItemStore is the record surface of one organization/project.
type WorkItemStore interface {
	// Query runs a WIQL query and returns the matching ids in result order.
	Query(ctx context.Context, wiql string) ([]int, error)
	// BatchFetch hydrates at most BatchSize ids with the named fields.
	BatchFetch(ctx context.Context, ids []int, fields []string) ([]*domain.WorkItem, error)
	// GetWorkItem reads one record with its relations and revision.
	GetWorkItem(ctx context.Context, id int) (*domain.WorkItem, error)
	CreateWorkItem(ctx context.Context, witType string, p patch.Patch) (*domain.WorkItem, error)
	// UpdateWorkItem applies p; a failing revision guard yields domain.ErrRevisionMismatch.
	UpdateWorkItem(ctx context.Context, id int, p patch.Patch) (*domain.WorkItem, error)
}

// AttachmentStore moves attachment bytes in and out of an organization.
type AttachmentStore interface {
	UploadAttachment(ctx context.Context, name string, r io.Reader) (domain.AttachmentRef, error)
	DownloadAttachment(ctx context.Context, id string) (io.ReadCloser, error)
}

// CommentStore reads and appends work item discussion.
type CommentStore interface {
	// ListComments returns every comment, oldest first.
	ListComments(ctx context.Context, workItemID int) ([]domain.Comment, error)
	AddComment(ctx context.Context, workItemID int, text string) (domain.Comment, error)
}

// NodeStore manages area and iteration trees.
type NodeStore interface {
	GetNodeTree(ctx context.Context, group domain.StructureGroup) (*domain.ClassificationNode, error)
	// CreateNode creates node under parentPath ("" is the group root).
	CreateNode(ctx context.Context, group domain.StructureGroup, parentPath string, node *domain.ClassificationNode) (*domain.ClassificationNode, error)
	UpdateNode(ctx context.Context, group domain.StructureGroup, path string, attrs *domain.NodeAttributes) error
}

// ProcessStore manages workflow states of inherited processes.
type ProcessStore interface {
	ListWorkItemTypes(ctx context.Context, processID string) ([]domain.WorkItemType, error)
	ListStates(ctx context.Context, processID, witRef string) ([]domain.WorkflowState, error)
	CreateState(ctx context.Context, processID, witRef string, state domain.WorkflowState) (domain.WorkflowState, error)
	HideState(ctx context.Context, processID, witRef, stateID string) error
}

// Endpoint is everything the engine needs from one side of the migration.
type Endpoint interface {
	WorkItemStore
	AttachmentStore
	CommentStore
	NodeStore
	ProcessStore

	Organization() string
	Project() string
}
