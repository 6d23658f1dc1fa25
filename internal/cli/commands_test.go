package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"workitems": false, "nodes": false, "states": false, "runs": false, "version": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command should be registered with rootCmd", name)
		}
	}
}

func TestGlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "journal", "output", "log-level"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing persistent flag --%s", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionJSON = false

	if err := runVersion(versionCmd, nil); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(buf.String(), "orgsync version dev") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestVersionCommandJSON(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionJSON = true
	defer func() { versionJSON = false }()

	if err := runVersion(versionCmd, nil); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var info versionInfo
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if info.Version != Version {
		t.Errorf("version = %q", info.Version)
	}
	if len(info.Commands) == 0 {
		t.Error("commands should be listed")
	}
}

func TestParseGroups(t *testing.T) {
	for _, in := range []string{"all", "ALL", ""} {
		groups, err := parseGroups(in)
		if err != nil || len(groups) != 2 {
			t.Errorf("parseGroups(%q) = %v, %v", in, groups, err)
		}
	}
	groups, err := parseGroups("iterations")
	if err != nil || len(groups) != 1 || groups[0] != "iterations" {
		t.Errorf("parseGroups(iterations) = %v, %v", groups, err)
	}
	if _, err := parseGroups("sprints"); err == nil {
		t.Error("parseGroups should reject unknown groups")
	}
}
