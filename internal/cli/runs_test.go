package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/lherron/orgsync/internal/journal"
	"github.com/lherron/orgsync/internal/testutil"
)

func TestRunsLsAndShow(t *testing.T) {
	src, dst := newFakeOrgs()
	src.AddWorkItem(testutil.Seed{Type: "Bug", Title: "one"})
	app := createTestApp(t, src, dst)

	cmd, buf := newTestCmd()
	if err := runWorkItems(app, cmd, nil); err != nil {
		t.Fatalf("workitems failed: %v", err)
	}
	runID := decodeRunReport(t, buf.Bytes()).RunID

	cmd, buf = newTestCmd()
	if err := runRunsLs(app, cmd, nil); err != nil {
		t.Fatalf("runs ls failed: %v", err)
	}
	var runs []journal.Run
	if err := json.Unmarshal(buf.Bytes(), &runs); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Fatalf("runs = %+v", runs)
	}

	cmd, buf = newTestCmd()
	if err := runRunsShow(app, cmd, []string{runID[:8]}); err != nil {
		t.Fatalf("runs show failed: %v", err)
	}
	var detail runDetail
	if err := json.Unmarshal(buf.Bytes(), &detail); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if detail.ID != runID || len(detail.Outcomes) == 0 {
		t.Errorf("detail = %+v", detail)
	}
}

func TestRunsLsEmptyTable(t *testing.T) {
	src, dst := newFakeOrgs()
	app := createTestApp(t, src, dst)
	app.Config.Output = "table"

	cmd, buf := newTestCmd()
	if err := runRunsLs(app, cmd, nil); err != nil {
		t.Fatalf("runs ls failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(none)") {
		t.Errorf("empty table output = %q", buf.String())
	}
}

func TestRunsShowUnknown(t *testing.T) {
	src, dst := newFakeOrgs()
	app := createTestApp(t, src, dst)

	cmd, _ := newTestCmd()
	if err := runRunsShow(app, cmd, []string{"does-not-exist"}); err == nil {
		t.Error("runs show should fail for an unknown id")
	}
}
