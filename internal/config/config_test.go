package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindEnvLocal_InParentDir(t *testing.T) {
	// Create temp directory structure: parent/.env.local, parent/child/
	tmpDir := t.TempDir()
	childDir := filepath.Join(tmpDir, "child")
	if err := os.Mkdir(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to child dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result == "" {
		t.Error("expected to find .env.local in parent directory")
	}
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(envPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected %s, got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_ClosestWins(t *testing.T) {
	// Create: grandparent/.env.local, grandparent/parent/.env.local, grandparent/parent/child/
	tmpDir := t.TempDir()
	parentDir := filepath.Join(tmpDir, "parent")
	childDir := filepath.Join(parentDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Create .env.local in both grandparent and parent
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("TEST=grandparent"), 0644); err != nil {
		t.Fatal(err)
	}
	parentEnvPath := filepath.Join(parentDir, ".env.local")
	if err := os.WriteFile(parentEnvPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to child dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(parentEnvPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected closest .env.local (%s), got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_NotFound(t *testing.T) {
	// Create temp directory with no .env.local
	tmpDir := t.TempDir()

	// Change to temp dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result != "" {
		t.Errorf("expected empty string when no .env.local found, got %s", result)
	}
}

// isolate points HOME and cwd at empty temp dirs so no user config leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"ORGSYNC_SOURCE_URL", "ORGSYNC_SOURCE_PROJECT", "ORGSYNC_SOURCE_PAT", "ORGSYNC_SOURCE_PAT_FILE",
		"ORGSYNC_TARGET_URL", "ORGSYNC_TARGET_PROJECT", "ORGSYNC_TARGET_PAT", "ORGSYNC_TARGET_PAT_FILE",
		"ORGSYNC_JOURNAL_PATH", "ORGSYNC_MAX_PARENT_DEPTH", "ORGSYNC_INLINE_ATTACHMENTS",
	} {
		t.Setenv(key, "")
	}
	work := filepath.Join(home, "work")
	if err := os.Mkdir(work, 0755); err != nil {
		t.Fatal(err)
	}
	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TrackingField != "Custom.SourceWorkitemId" {
		t.Errorf("TrackingField = %q", cfg.TrackingField)
	}
	if !cfg.MigrateInlineAttachments {
		t.Error("MigrateInlineAttachments should default to true")
	}
	if cfg.MaxParentDepth != 32 {
		t.Errorf("MaxParentDepth = %d, want 32", cfg.MaxParentDepth)
	}
	want := filepath.Join(home, ".local", "share", "orgsync", "journal.db")
	if cfg.JournalPath != want {
		t.Errorf("JournalPath = %q, want %q", cfg.JournalPath, want)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	home := isolate(t)

	yamlPath := filepath.Join(home, "orgsync.yaml")
	content := `
source:
  url: https://dev.azure.com/contoso
  project: Legacy
target:
  url: https://fabrikam.visualstudio.com
  project: Modern
max_parent_depth: 8
type_map:
  Issue: Bug
`
	if err := os.WriteFile(yamlPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	patFile := filepath.Join(home, "pat.txt")
	if err := os.WriteFile(patFile, []byte("secret-from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ORGSYNC_SOURCE_PAT", "source-pat")
	t.Setenv("ORGSYNC_TARGET_PAT_FILE", patFile)
	t.Setenv("ORGSYNC_MAX_PARENT_DEPTH", "4")
	t.Setenv("ORGSYNC_INLINE_ATTACHMENTS", "false")

	cfg, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source.Project != "Legacy" || cfg.Target.Project != "Modern" {
		t.Errorf("projects = %q/%q", cfg.Source.Project, cfg.Target.Project)
	}
	if cfg.Source.PAT != "source-pat" {
		t.Errorf("Source.PAT = %q", cfg.Source.PAT)
	}
	if cfg.Target.PAT != "secret-from-file" {
		t.Errorf("Target.PAT = %q, want trimmed file contents", cfg.Target.PAT)
	}
	if cfg.MaxParentDepth != 4 {
		t.Errorf("MaxParentDepth = %d, env should override YAML", cfg.MaxParentDepth)
	}
	if cfg.MigrateInlineAttachments {
		t.Error("MigrateInlineAttachments should be false from env")
	}
	if got := cfg.TargetType("Issue"); got != "Bug" {
		t.Errorf("TargetType(Issue) = %q, want Bug", got)
	}
	if got := cfg.TargetType("Task"); got != "Task" {
		t.Errorf("TargetType(Task) = %q, want Task", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	home := isolate(t)
	if _, err := Load(filepath.Join(home, "missing.yaml")); err == nil {
		t.Error("Load() with missing explicit path should fail")
	}
}

func TestLoad_BadIntegerEnv(t *testing.T) {
	isolate(t)
	t.Setenv("ORGSYNC_MAX_PARENT_DEPTH", "deep")
	if _, err := Load(""); err == nil {
		t.Error("Load() should reject non-numeric ORGSYNC_MAX_PARENT_DEPTH")
	}
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := &Config{
		Source:        Endpoint{URL: "https://dev.azure.com/", Project: "A"},
		TrackingField: "Custom.SourceWorkitemId",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"source.url", "source.pat", "target.url", "target.project", "target.pat"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestEndpointOrganization(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://dev.azure.com/contoso", "contoso"},
		{"https://dev.azure.com/contoso/", "contoso"},
		{"https://Fabrikam.visualstudio.com", "fabrikam"},
		{"https://dev.azure.com", ""},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := (Endpoint{URL: tt.url}).Organization(); got != tt.want {
			t.Errorf("Organization(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
