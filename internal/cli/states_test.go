package cli

import (
	"encoding/json"
	"testing"

	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/testutil"
)

func seedProcesses(src, dst *testutil.FakeOrg) {
	src.AddProcessType("src-proc", domain.WorkItemType{Name: "Bug", ReferenceName: "Src.Bug"},
		domain.WorkflowState{Name: "New", Category: domain.CategoryProposed, Order: 1},
		domain.WorkflowState{Name: "Triage", Category: domain.CategoryProposed, Order: 2},
		domain.WorkflowState{Name: "Closed", Category: domain.CategoryCompleted, Order: 3},
	)
	dst.AddProcessType("dst-proc", domain.WorkItemType{Name: "Bug", ReferenceName: "Dst.Bug"},
		domain.WorkflowState{Name: "New", Category: domain.CategoryProposed, Order: 1},
		domain.WorkflowState{Name: "Closed", Category: domain.CategoryCompleted, Order: 2},
	)
}

func statesTestApp(t *testing.T) (*testutil.FakeOrg, *testutil.FakeOrg, func() (statesReport, error)) {
	src, dst := newFakeOrgs()
	seedProcesses(src, dst)
	app := createTestApp(t, src, dst)
	app.Config.Source.ProcessID = "src-proc"
	app.Config.Target.ProcessID = "dst-proc"
	run := func() (statesReport, error) {
		cmd, buf := newTestCmd()
		var out statesReport
		if err := runStates(app, cmd, nil); err != nil {
			return out, err
		}
		if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
		}
		return out, nil
	}
	return src, dst, run
}

func TestRunStates_Apply(t *testing.T) {
	_, dst, run := statesTestApp(t)

	out, err := run()
	if err != nil {
		t.Fatalf("states failed: %v", err)
	}
	if !out.Applied || out.RunID == "" {
		t.Errorf("applied run should be journaled: %+v", out)
	}
	if len(out.Mappings) != 3 {
		t.Fatalf("mappings = %+v", out.Mappings)
	}
	for _, m := range out.Mappings {
		if m.SourceState != m.TargetState {
			t.Errorf("mapping %+v should be exact after alignment", m)
		}
	}
	if n := len(dst.States("dst-proc", "Dst.Bug")); n != 3 {
		t.Errorf("target has %d states, want 3", n)
	}
}

func TestRunStates_PlanOnly(t *testing.T) {
	_, dst, run := statesTestApp(t)

	statesApply = false
	defer func() { statesApply = true }()

	out, err := run()
	if err != nil {
		t.Fatalf("states failed: %v", err)
	}
	if out.Applied || out.RunID != "" {
		t.Errorf("plan should not be journaled: %+v", out)
	}
	found := false
	for _, m := range out.Mappings {
		if m.SourceState == "Triage" && m.TargetState == "Triage" {
			found = true
		}
	}
	if !found {
		t.Errorf("plan should map Triage onto the state it would create: %+v", out.Mappings)
	}
	if dst.Calls(testutil.OpCreateState) != 0 {
		t.Error("plan created states on the target")
	}
	if n := len(dst.States("dst-proc", "Dst.Bug")); n != 2 {
		t.Errorf("target has %d states, want 2", n)
	}
}

func TestRunStates_RequiresProcessIDs(t *testing.T) {
	src, dst := newFakeOrgs()
	app := createTestApp(t, src, dst)

	cmd, _ := newTestCmd()
	if err := runStates(app, cmd, nil); err == nil {
		t.Error("states should fail without process ids")
	}
}
