// Package config builds the single explicit configuration struct both
// functions receive at startup. Nothing outside this package reads ambient
// environment state; the one profile selector chooses among named
// configuration sets in config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config carries every tunable for one process. It is constructed once in the
// entry point and passed by parameter into every component.
type Config struct {
	Profile string

	ProjectID      string
	ServiceAccount string // target principal for domain-wide delegation
	AdminSubject   string // directory admin the service impersonates

	// Directory
	GroupTag string // description tag marking eligible groups

	// Roster spreadsheet
	RosterOwner    string // drive owner holding the roster file
	RosterFileName string
	ArchiveBucket  string // GCS bucket for timestamped roster snapshots

	// Sharing
	PairsList        string // pair registry list name
	RecordingsFolder string
	SharedFolder     string
	LinkBaseURL      string
	NotifyOnShare    bool // let the provider send its own share invitation

	// List store targets
	RunLogList          string
	SharingErrorList    string
	ReconcilerErrorList string

	// Mail
	MailSender         string
	OperatorRecipients []string
	OperatorCC         []string
	RunLogListURL      string
	RepoURL            string

	// Fan-out limits; nested levels multiply (pairs x members x files).
	PairWorkers   int
	MemberWorkers int
	FileWorkers   int
	StaffWorkers  int
	NotifyWorkers int

	// QueryPageSize bounds list store query pages.
	QueryPageSize int
}

// Load reads config.yaml from configPath, applies the selected profile's
// overrides and then environment overrides (prefix VSF_). The profile comes
// from the APP_PROFILE environment variable, defaulting to "production".
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("VSF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("groupTag", "videosharingflow")
	v.SetDefault("rosterFileName", "UserGroup.xlsx")
	v.SetDefault("pairsList", "agentCheckerPairs")
	v.SetDefault("recordingsFolder", "Recordings")
	v.SetDefault("sharedFolder", "Shared")
	v.SetDefault("runLogList", "functionRunLog")
	v.SetDefault("sharingErrorList", "shareVideosErrorLog")
	v.SetDefault("reconcilerErrorList", "updateUserGroupErrorLog")
	v.SetDefault("notifyOnShare", true)
	v.SetDefault("pairWorkers", 2)
	v.SetDefault("memberWorkers", 4)
	v.SetDefault("fileWorkers", 4)
	v.SetDefault("staffWorkers", 8)
	v.SetDefault("notifyWorkers", 4)
	v.SetDefault("queryPageSize", 100)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config.yaml: defaults plus env vars still form a full profile.
	}

	profile := v.GetString("profile")
	if p, ok := os.LookupEnv("APP_PROFILE"); ok && p != "" {
		profile = p
	}
	if profile == "" {
		profile = "production"
	}
	if sub := v.Sub("profiles." + profile); sub != nil {
		if err := v.MergeConfigMap(sub.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to apply profile %q: %w", profile, err)
		}
	}

	cfg := &Config{
		Profile:             profile,
		ProjectID:           v.GetString("projectId"),
		ServiceAccount:      v.GetString("serviceAccount"),
		AdminSubject:        v.GetString("adminSubject"),
		GroupTag:            v.GetString("groupTag"),
		RosterOwner:         v.GetString("rosterOwner"),
		RosterFileName:      v.GetString("rosterFileName"),
		ArchiveBucket:       v.GetString("archiveBucket"),
		PairsList:           v.GetString("pairsList"),
		RecordingsFolder:    v.GetString("recordingsFolder"),
		SharedFolder:        v.GetString("sharedFolder"),
		LinkBaseURL:         v.GetString("linkBaseUrl"),
		NotifyOnShare:       v.GetBool("notifyOnShare"),
		RunLogList:          v.GetString("runLogList"),
		SharingErrorList:    v.GetString("sharingErrorList"),
		ReconcilerErrorList: v.GetString("reconcilerErrorList"),
		MailSender:          v.GetString("mail.sender"),
		OperatorRecipients:  splitRecipients(v.GetString("mail.operatorRecipients")),
		OperatorCC:          splitRecipients(v.GetString("mail.operatorCc")),
		RunLogListURL:       v.GetString("mail.runLogListUrl"),
		RepoURL:             v.GetString("mail.repoUrl"),
		PairWorkers:         v.GetInt("pairWorkers"),
		MemberWorkers:       v.GetInt("memberWorkers"),
		FileWorkers:         v.GetInt("fileWorkers"),
		StaffWorkers:        v.GetInt("staffWorkers"),
		NotifyWorkers:       v.GetInt("notifyWorkers"),
		QueryPageSize:       v.GetInt("queryPageSize"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("config: projectId must be set (profile %q)", c.Profile)
	}
	if c.MailSender == "" {
		return fmt.Errorf("config: mail.sender must be set (profile %q)", c.Profile)
	}
	return nil
}

// splitRecipients turns a semicolon-separated address list into a slice,
// dropping blanks.
func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
