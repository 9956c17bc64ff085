package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `projectId: base-project
mail:
  sender: noreply@example.com
  operatorRecipients: "ops@example.com; oncall@example.com ;"
profiles:
  production:
    linkBaseUrl: https://files.example.com/personal
  staging:
    projectId: staging-project
    groupTag: videosharingflow-staging
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return dir
}

func TestLoadDefaultProfile(t *testing.T) {
	dir := writeConfig(t, sampleConfig)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Profile != "production" {
		t.Errorf("profile = %q, want production", cfg.Profile)
	}
	if cfg.ProjectID != "base-project" {
		t.Errorf("projectId = %q", cfg.ProjectID)
	}
	if cfg.LinkBaseURL != "https://files.example.com/personal" {
		t.Errorf("linkBaseUrl = %q", cfg.LinkBaseURL)
	}
	// Untouched keys keep their defaults.
	if cfg.GroupTag != "videosharingflow" {
		t.Errorf("groupTag = %q", cfg.GroupTag)
	}
	if cfg.StaffWorkers != 8 || cfg.QueryPageSize != 100 {
		t.Errorf("worker defaults = %d/%d", cfg.StaffWorkers, cfg.QueryPageSize)
	}
}

func TestLoadProfileOverrides(t *testing.T) {
	dir := writeConfig(t, sampleConfig)
	t.Setenv("APP_PROFILE", "staging")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Profile != "staging" {
		t.Errorf("profile = %q, want staging", cfg.Profile)
	}
	if cfg.ProjectID != "staging-project" {
		t.Errorf("projectId = %q, want the staging override", cfg.ProjectID)
	}
	if cfg.GroupTag != "videosharingflow-staging" {
		t.Errorf("groupTag = %q", cfg.GroupTag)
	}
	// Keys the profile does not override stay at the base value.
	if cfg.MailSender != "noreply@example.com" {
		t.Errorf("mail.sender = %q", cfg.MailSender)
	}
}

func TestLoadSplitsRecipientList(t *testing.T) {
	dir := writeConfig(t, sampleConfig)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := []string{"ops@example.com", "oncall@example.com"}
	if len(cfg.OperatorRecipients) != len(want) {
		t.Fatalf("recipients = %v, want %v", cfg.OperatorRecipients, want)
	}
	for i := range want {
		if cfg.OperatorRecipients[i] != want[i] {
			t.Errorf("recipient %d = %q, want %q", i, cfg.OperatorRecipients[i], want[i])
		}
	}
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	dir := writeConfig(t, "mail:\n  sender: noreply@example.com\n")

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected a validation error without projectId")
	}
	if !strings.Contains(err.Error(), "projectId") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadWithoutConfigFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("VSF_PROJECTID", "env-project")
	t.Setenv("VSF_MAIL_SENDER", "env@example.com")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ProjectID != "env-project" {
		t.Errorf("projectId = %q", cfg.ProjectID)
	}
	if cfg.MailSender != "env@example.com" {
		t.Errorf("mail.sender = %q", cfg.MailSender)
	}
	if cfg.RosterFileName != "UserGroup.xlsx" {
		t.Errorf("rosterFileName default = %q", cfg.RosterFileName)
	}
}
