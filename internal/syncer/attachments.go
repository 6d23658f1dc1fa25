package syncer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lherron/orgsync/internal/attach"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/patch"
)

var attachmentIDPattern = regexp.MustCompile(`(?i)/_apis/wit/attachments/([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)

// AttachmentID extracts the attachment id from an attachment URL.
func AttachmentID(u string) (string, error) {
	m := attachmentIDPattern.FindStringSubmatch(u)
	if m == nil {
		return "", &domain.ParseError{Input: u, Reason: "no attachment id"}
	}
	id, err := uuid.Parse(m[1])
	if err != nil {
		return "", &domain.ParseError{Input: u, Reason: err.Error()}
	}
	return id.String(), nil
}

// SyncAttachments copies every attachment relation of src onto target.
//
// An attachment whose name already exists on the target is not copied again,
// but its mapping is still added to amap so inline references resolve. The
// latest copy of target is returned.
func (s *Session) SyncAttachments(ctx context.Context, src *domain.WorkItem, target *domain.WorkItem, amap AttachmentMap) *domain.WorkItem {
	if src.Relations == nil {
		full, err := s.Source.GetWorkItem(ctx, src.ID)
		if err != nil {
			s.warn("source %d: read relations: %v", src.ID, err)
			return target
		}
		src.Relations = full.Relations
	}

	for _, rel := range src.Attachments() {
		key := fmt.Sprintf("%d/%s", src.ID, rel.URL)
		id, err := AttachmentID(rel.URL)
		if err != nil {
			s.warn("source %d: %v", src.ID, err)
			s.record(Outcome{Unit: UnitAttachment, SourceKey: key, Status: StatusError, Err: err})
			continue
		}
		name := rel.Name()
		if name == "" {
			name = id
		}
		key = fmt.Sprintf("%d/%s", src.ID, name)

		if existing, ok := findAttachment(target, name); ok {
			amap[id] = existing
			s.record(Outcome{Unit: UnitAttachment, SourceKey: key, TargetRef: existing.URL, Status: StatusExisting})
			continue
		}

		ref, err := s.copyAttachment(ctx, src.ID, id, name)
		if err != nil {
			s.warn("source %d: copy attachment %q: %v", src.ID, name, err)
			s.record(Outcome{Unit: UnitAttachment, SourceKey: key, Status: StatusError, Err: err})
			continue
		}

		p := patch.Guarded(target.Rev).AddRelation(domain.Relation{
			Rel:        domain.RelAttachment,
			URL:        ref.URL,
			Attributes: map[string]any{"name": name},
		})
		updated, err := s.Target.UpdateWorkItem(ctx, target.ID, p)
		if err != nil {
			s.warn("target %d: attach %q: %v", target.ID, name, err)
			s.record(Outcome{Unit: UnitAttachment, SourceKey: key, Status: StatusError, Err: err})
			target = s.refresh(ctx, target)
			continue
		}
		amap[id] = ref
		target = s.refresh(ctx, updated)
		s.record(Outcome{Unit: UnitAttachment, SourceKey: key, TargetRef: ref.URL, Status: StatusMigrated})
	}
	return target
}

// findAttachment matches an attachment relation by case-insensitive name.
func findAttachment(target *domain.WorkItem, name string) (domain.AttachmentRef, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, rel := range target.Attachments() {
		if strings.ToLower(strings.TrimSpace(rel.Name())) != want {
			continue
		}
		id, _ := AttachmentID(rel.URL)
		return domain.AttachmentRef{ID: id, URL: rel.URL}, true
	}
	return domain.AttachmentRef{}, false
}

// copyAttachment streams one attachment from the source through the staging
// area to the target.
func (s *Session) copyAttachment(ctx context.Context, sourceID int, id, name string) (domain.AttachmentRef, error) {
	rc, err := s.Source.DownloadAttachment(ctx, id)
	if err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("download %s: %w", id, err)
	}
	defer rc.Close()

	staged, err := attach.Stage(s.opts.Staging, sourceID, name, rc)
	if err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("stage %s: %w", id, err)
	}
	defer staged.Remove()

	f, err := staged.Open()
	if err != nil {
		return domain.AttachmentRef{}, err
	}
	defer f.Close()

	ref, err := s.Target.UploadAttachment(ctx, staged.Filename, f)
	if err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("upload %s: %w", staged.Filename, err)
	}
	s.log.Debugf("source %d: attachment %s (%s, %d bytes) uploaded as %s",
		sourceID, id, staged.MimeType, staged.SizeBytes, ref.ID)
	return ref, nil
}
