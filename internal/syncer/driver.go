package syncer

import (
	"context"
	"fmt"

	"github.com/lherron/orgsync/internal/attach"
	"github.com/lherron/orgsync/internal/domain"
)

// EnumerationQuery is the WIQL listing the source records to migrate.
func EnumerationQuery(filter string) string {
	q := fmt.Sprintf("SELECT [%s] FROM WorkItems WHERE [%s] = @project", domain.FieldID, domain.FieldTeamProject)
	if filter != "" {
		q += " AND (" + filter + ")"
	}
	return q + fmt.Sprintf(" ORDER BY [%s]", domain.FieldID)
}

// LoadSource enumerates and hydrates the source records in batches of
// BatchSize. Any failure here is fatal for the run.
func (s *Session) LoadSource(ctx context.Context) ([]*domain.WorkItem, error) {
	ids, err := s.Source.Query(ctx, EnumerationQuery(s.opts.WIQLFilter))
	if err != nil {
		return nil, fmt.Errorf("enumerate source: %w", err)
	}

	fields := append(append([]string(nil), domain.CoreFields...), s.opts.CopyFields...)
	items := make([]*domain.WorkItem, 0, len(ids))
	for start := 0; start < len(ids); start += BatchSize {
		end := min(start+BatchSize, len(ids))
		batch, err := s.Source.BatchFetch(ctx, ids[start:end], fields)
		if err != nil {
			return nil, fmt.Errorf("hydrate source ids %d..%d: %w", ids[start], ids[end-1], err)
		}
		for _, wi := range batch {
			s.index[wi.ID] = wi
		}
		items = append(items, batch...)
	}
	s.log.Infof("enumerated %d source work item(s)", len(items))
	return items, nil
}

// MigrateWorkItems runs the whole work item migration. Per-record failures
// are counted in the report; only enumeration failure or cancellation stop
// the run.
func (s *Session) MigrateWorkItems(ctx context.Context) (Report, error) {
	s.log.Infof("migrating work items %s", s.describe())
	items, err := s.LoadSource(ctx)
	if err != nil {
		return s.report, err
	}

	for i, wi := range items {
		if _, err := s.Synchronize(ctx, wi); err != nil && isFatal(err) {
			return s.report, err
		}
		if err := attach.DeleteItemDir(s.opts.Staging.StagingDir, wi.ID); err != nil {
			s.log.Debugf("clean staging for %d: %v", wi.ID, err)
		}
		if (i+1)%100 == 0 {
			s.log.Infof("processed %d/%d", i+1, len(items))
		}
	}

	c := s.report.For(UnitWorkItem)
	s.log.Infof("work items: %d migrated, %d existing, %d errors", c.Migrated, c.Existing, c.Errors)
	return s.report, nil
}
