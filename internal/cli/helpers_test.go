package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lherron/orgsync/internal/cli/appctx"
	"github.com/lherron/orgsync/internal/config"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/journal"
	"github.com/lherron/orgsync/internal/logging"
	"github.com/lherron/orgsync/internal/testutil"
)

// createTestApp wires two fake organizations and a temp journal into an App.
func createTestApp(t *testing.T, src, dst *testutil.FakeOrg) *appctx.App {
	t.Helper()
	database, _ := testutil.TempDB(t)
	cfg := &config.Config{
		TrackingField:            domain.DefaultTrackingField,
		MigrateInlineAttachments: true,
		MaxParentDepth:           32,
		RemapPaths:               true,
		StagingDir:               t.TempDir(),
		AttachmentsMaxMB:         10,
		Output:                   "json",
	}
	return &appctx.App{
		Config:  cfg,
		Log:     logging.Discard(),
		DB:      database,
		Journal: journal.New(database),
		Source:  src,
		Target:  dst,
	}
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	return cmd, buf
}

func newFakeOrgs() (*testutil.FakeOrg, *testutil.FakeOrg) {
	return testutil.NewFakeOrg("contoso", "Legacy"), testutil.NewFakeOrg("fabrikam", "Modern")
}
