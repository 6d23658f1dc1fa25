package syncer

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/logging"
	"github.com/lherron/orgsync/internal/patch"
)

// ReferenceKind is the textual shape an inline attachment reference has.
type ReferenceKind int

const (
	// ReferenceImage is <img ... src="URL">.
	ReferenceImage ReferenceKind = iota
	// ReferenceMalformedImage is <img ... src="URL with no closing quote.
	ReferenceMalformedImage
	// ReferenceLink is a bare attachment URL anywhere in the text.
	ReferenceLink
)

var (
	imageRefPattern     = regexp.MustCompile(`(?i)(<img\b[^>]*?\bsrc\s*=\s*")([^"<>]+)(")`)
	malformedRefPattern = regexp.MustCompile(`(?i)(<img\b[^>]*?\bsrc\s*=\s*")([^"\s>]+)([\s>]|$)`)
	linkRefPattern      = regexp.MustCompile(`(?i)https?://[^\s"'<>()\[\]]+?/_apis/wit/attachments/[0-9a-f]{8}-[0-9a-f-]{27}[^\s"'<>()\[\]]*`)
)

// InlineReference is one attachment URL found in rich text.
type InlineReference struct {
	Kind     ReferenceKind
	URL      string
	ID       string
	FileName string
}

// OrganizationOf returns the lower-cased organization name an Azure DevOps
// URL points into, or "" for anything else.
func OrganizationOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "dev.azure.com":
		seg, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		return strings.ToLower(seg)
	case strings.HasSuffix(host, ".visualstudio.com"):
		return strings.TrimSuffix(host, ".visualstudio.com")
	}
	return ""
}

// FindInlineReferences lists the distinct attachment references in text that
// point into sourceOrg, in order of first appearance.
func FindInlineReferences(text, sourceOrg string) []InlineReference {
	var refs []InlineReference
	seen := make(map[string]bool)
	add := func(kind ReferenceKind, raw string) {
		if !strings.EqualFold(OrganizationOf(raw), sourceOrg) {
			return
		}
		id, err := AttachmentID(raw)
		if err != nil || seen[id] {
			return
		}
		seen[id] = true
		refs = append(refs, InlineReference{Kind: kind, URL: raw, ID: id, FileName: fileNameParam(raw)})
	}

	for _, m := range imageRefPattern.FindAllStringSubmatch(text, -1) {
		add(ReferenceImage, m[2])
	}
	for _, m := range malformedRefPattern.FindAllStringSubmatch(text, -1) {
		add(ReferenceMalformedImage, m[2])
	}
	for _, m := range linkRefPattern.FindAllString(text, -1) {
		add(ReferenceLink, m)
	}
	return refs
}

func fileNameParam(raw string) string {
	u, err := url.Parse(strings.ReplaceAll(raw, "&amp;", "&"))
	if err != nil {
		return ""
	}
	return u.Query().Get("fileName")
}

// ReplaceInlineReferences swaps every source-organization attachment URL that
// has an entry in amap for the target URL. Unmapped references and URLs of
// other organizations are left alone; the original query string is kept.
func ReplaceInlineReferences(text string, amap AttachmentMap, sourceOrg, targetOrg string) string {
	if text == "" || len(amap) == 0 || strings.EqualFold(sourceOrg, targetOrg) {
		return text
	}

	swap := func(raw string) string {
		if !strings.EqualFold(OrganizationOf(raw), sourceOrg) {
			return raw
		}
		id, err := AttachmentID(raw)
		if err != nil {
			return raw
		}
		ref, ok := amap[id]
		if !ok {
			return raw
		}
		_, query, hasQuery := strings.Cut(raw, "?")
		if !hasQuery {
			return ref.URL
		}
		base, _, _ := strings.Cut(ref.URL, "?")
		return base + "?" + query
	}

	out := imageRefPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := imageRefPattern.FindStringSubmatch(m)
		return sub[1] + swap(sub[2]) + sub[3]
	})
	out = malformedRefPattern.ReplaceAllStringFunc(out, func(m string) string {
		sub := malformedRefPattern.FindStringSubmatch(m)
		return sub[1] + swap(sub[2]) + sub[3]
	})
	return linkRefPattern.ReplaceAllStringFunc(out, swap)
}

// RewriteInline rewrites the attachment references of text for the target.
// Referenced attachments missing from amap are copied first when inline
// migration is enabled. The text is returned unchanged when nothing applies.
func (s *Session) RewriteInline(ctx context.Context, sourceID int, text string, amap AttachmentMap) string {
	sourceOrg, targetOrg := s.Source.Organization(), s.Target.Organization()
	if text == "" || strings.EqualFold(sourceOrg, targetOrg) {
		return text
	}

	for _, ref := range FindInlineReferences(text, sourceOrg) {
		if _, ok := amap[ref.ID]; ok {
			continue
		}
		key := fmt.Sprintf("%d/%s", sourceID, ref.ID)
		if !s.opts.MigrateInlineAttachments {
			s.record(Outcome{Unit: UnitInline, SourceKey: key, Status: StatusSkipped})
			continue
		}
		name := ref.FileName
		if name == "" {
			name = ref.ID
		}
		uploaded, err := s.copyAttachment(ctx, sourceID, ref.ID, name)
		if err != nil {
			s.warn("source %d: inline attachment %s: %v", sourceID, ref.ID, err)
			s.record(Outcome{Unit: UnitInline, SourceKey: key, Status: StatusError, Err: err})
			continue
		}
		amap[ref.ID] = uploaded
		s.record(Outcome{Unit: UnitInline, SourceKey: key, TargetRef: uploaded.URL, Status: StatusMigrated})
	}

	return ReplaceInlineReferences(text, amap, sourceOrg, targetOrg)
}

// rewriteDescription rewrites the target's current description in place.
func (s *Session) rewriteDescription(ctx context.Context, sourceID int, target *domain.WorkItem, amap AttachmentMap) *domain.WorkItem {
	if target.Description == "" {
		return target
	}
	rewritten := s.RewriteInline(ctx, sourceID, target.Description, amap)
	if rewritten == target.Description {
		return target
	}
	if s.log.Enabled(logging.LevelDebug) {
		s.log.Debugf("target %d description:\n%s", target.ID, descriptionDiff(target.Description, rewritten))
	}

	key := strconv.Itoa(sourceID)
	p := patch.Guarded(target.Rev).SetField(domain.FieldDescription, rewritten)
	updated, err := s.Target.UpdateWorkItem(ctx, target.ID, p)
	if err != nil {
		s.warn("target %d: update description: %v", target.ID, err)
		s.record(Outcome{Unit: UnitDescription, SourceKey: key, TargetRef: strconv.Itoa(target.ID), Status: StatusError, Err: err})
		return s.refresh(ctx, target)
	}
	s.record(Outcome{Unit: UnitDescription, SourceKey: key, TargetRef: strconv.Itoa(target.ID), Status: StatusMigrated})
	return updated
}

func descriptionDiff(before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}
