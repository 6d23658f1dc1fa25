package syncer_test

import (
	"strconv"
	"testing"

	"github.com/lherron/orgsync/internal/attach"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/logging"
	"github.com/lherron/orgsync/internal/syncer"
	"github.com/lherron/orgsync/internal/testutil"
)

var _ syncer.Endpoint = (*testutil.FakeOrg)(nil)

func newOrgs() (*testutil.FakeOrg, *testutil.FakeOrg) {
	return testutil.NewFakeOrg("contoso", "Legacy"), testutil.NewFakeOrg("fabrikam", "Modern")
}

func newSession(t *testing.T, src, dst *testutil.FakeOrg, mutate ...func(*syncer.Options)) *syncer.Session {
	t.Helper()
	opts := syncer.Options{
		MigrateInlineAttachments: true,
		RemapPaths:               true,
		Staging:                  attach.Config{StagingDir: t.TempDir(), MaxMB: 10},
	}
	for _, m := range mutate {
		m(&opts)
	}
	return syncer.NewSession(src, dst, opts, logging.Discard(), nil)
}

// targetFor finds the target record tracking sourceID.
func targetFor(t *testing.T, dst *testutil.FakeOrg, sourceID int) *domain.WorkItem {
	t.Helper()
	want := strconv.Itoa(sourceID)
	for _, wi := range dst.WorkItems() {
		if wi.StringField(domain.DefaultTrackingField) == want {
			return wi
		}
	}
	t.Fatalf("no target record tracks source %d", sourceID)
	return nil
}
