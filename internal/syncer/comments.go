package syncer

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lherron/orgsync/internal/domain"
)

// Attribution returns the header prepended to a migrated comment.
func Attribution(c domain.Comment) string {
	author := c.Author
	if author == "" {
		author = "unknown"
	}
	return fmt.Sprintf("<p><i>Originally posted by %s on %s</i></p>",
		html.EscapeString(author), c.CreatedAt.UTC().Format(time.RFC3339))
}

// AlreadyMigrated reports whether a source comment is present among the
// target comment texts: verbatim, or as a copy starting with its
// attribution header.
func AlreadyMigrated(c domain.Comment, targetTexts []string) bool {
	header := Attribution(c)
	for _, t := range targetTexts {
		if t == c.Text || strings.HasPrefix(t, header) {
			return true
		}
	}
	return false
}

// SyncComments appends the source discussion of sourceID to target, oldest
// first, skipping comments that were migrated before. It returns the number
// of comments added.
func (s *Session) SyncComments(ctx context.Context, sourceID int, target *domain.WorkItem, amap AttachmentMap) int {
	key := strconv.Itoa(sourceID)
	source, err := s.Source.ListComments(ctx, sourceID)
	if err != nil {
		s.warn("source %d: list comments: %v", sourceID, err)
		s.record(Outcome{Unit: UnitComment, SourceKey: key, Status: StatusError, Err: err})
		return 0
	}
	if len(source) == 0 {
		return 0
	}
	existing, err := s.Target.ListComments(ctx, target.ID)
	if err != nil {
		s.warn("target %d: list comments: %v", target.ID, err)
		s.record(Outcome{Unit: UnitComment, SourceKey: key, Status: StatusError, Err: err})
		return 0
	}

	texts := make([]string, 0, len(existing)+len(source))
	for _, c := range existing {
		texts = append(texts, c.Text)
	}

	sort.SliceStable(source, func(i, j int) bool {
		return source[i].CreatedAt.Before(source[j].CreatedAt)
	})

	added := 0
	for _, c := range source {
		ckey := fmt.Sprintf("%d/%d", sourceID, c.ID)
		if strings.TrimSpace(c.Text) == "" {
			s.record(Outcome{Unit: UnitComment, SourceKey: ckey, Status: StatusSkipped})
			continue
		}
		if AlreadyMigrated(c, texts) {
			s.record(Outcome{Unit: UnitComment, SourceKey: ckey, Status: StatusExisting})
			continue
		}

		text := Attribution(c) + s.RewriteInline(ctx, sourceID, c.Text, amap)
		posted, err := s.Target.AddComment(ctx, target.ID, text)
		if err != nil {
			s.warn("target %d: add comment %d: %v", target.ID, c.ID, err)
			s.record(Outcome{Unit: UnitComment, SourceKey: ckey, Status: StatusError, Err: err})
			continue
		}
		texts = append(texts, text)
		added++
		s.record(Outcome{
			Unit:      UnitComment,
			SourceKey: ckey,
			TargetRef: fmt.Sprintf("%d/%d", target.ID, posted.ID),
			Status:    StatusMigrated,
		})
	}
	return added
}
