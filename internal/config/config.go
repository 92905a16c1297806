package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store is the per-repository key/value surface, backed by git config. A
// missing key reads as "" and is never an error: absence means a default or a
// disabled feature. The only write is the remote-URL persist after
// provisioning.
type Store interface {
	ConfigGet(ctx context.Context, key string) (string, error)
	ConfigSet(ctx context.Context, key, value string) error
}

// Git config section holding all per-repository hook settings.
const section = "mirror"

// Key returns the fully qualified git config key for a setting name.
func Key(name string) string {
	return section + "." + name
}

// Environment variable carrying the repository's logical name, set by the
// hook dispatcher (gitolite convention).
const repoNameEnv = "GL_REPO"

// Defaults holds site-wide defaults loaded from the optional config file.
// Per-repository git config always wins over these.
type Defaults struct {
	API  APIDefaults  `yaml:"api"`
	Repo RepoDefaults `yaml:"repo"`
	Auth AuthDefaults `yaml:"auth"`
}

// APIDefaults configures the hosting platform API
type APIDefaults struct {
	BaseURL   string `yaml:"base_url"`
	TokenFile string `yaml:"token_file"`
}

// RepoDefaults configures provisioned repositories
type RepoDefaults struct {
	DescriptionTemplate string `yaml:"description_template"`
	HomepageTemplate    string `yaml:"homepage_template"`
	Private             bool   `yaml:"private"`
}

// AuthDefaults configures push authentication
type AuthDefaults struct {
	SSHKeyFile string `yaml:"ssh_key_file"`
}

// LoadDefaults reads and parses the site defaults file. A missing file is not
// an error; the hook must work from git config alone.
func LoadDefaults(path string) (*Defaults, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Defaults{}, nil
		}
		return nil, fmt.Errorf("failed to read defaults file: %w", err)
	}

	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse defaults file: %w", err)
	}

	d.expandEnv()
	return &d, nil
}

// expandEnv expands environment variables in all path-valued fields
func (d *Defaults) expandEnv() {
	d.API.TokenFile = os.ExpandEnv(d.API.TokenFile)
	d.Auth.SSHKeyFile = os.ExpandEnv(d.Auth.SSHKeyFile)
}

// Settings is the effective per-invocation configuration, assembled from the
// repository's git config layered over the site defaults.
type Settings struct {
	// Remote is the destination URL; empty means not yet configured.
	Remote string
	// RefPatterns selects the refs to mirror; empty means default branch only.
	RefPatterns []string
	// CreateEnabled turns on repository auto-provisioning.
	CreateEnabled bool
	// TokenFile is the path to the platform API credential.
	TokenFile string
	// APIBaseURL overrides the platform API endpoint (empty = github.com).
	APIBaseURL string
	// DescriptionTemplate and HomepageTemplate are substituted with the
	// repository name when provisioning.
	DescriptionTemplate string
	HomepageTemplate    string
	// Private is the visibility of a provisioned repository.
	Private bool
	// RepoName is the repository's logical name on the platform.
	RepoName string
	// SSHKeyFile authenticates SSH pushes when set.
	SSHKeyFile string
}

// LoadSettings assembles the effective settings for the current invocation.
func LoadSettings(ctx context.Context, store Store, defaults *Defaults) (*Settings, error) {
	if defaults == nil {
		defaults = &Defaults{}
	}

	get := func(name string) (string, error) {
		val, err := store.ConfigGet(ctx, Key(name))
		if err != nil {
			return "", fmt.Errorf("failed to read config key %s: %w", Key(name), err)
		}
		return val, nil
	}

	s := &Settings{
		APIBaseURL:          defaults.API.BaseURL,
		TokenFile:           defaults.API.TokenFile,
		DescriptionTemplate: defaults.Repo.DescriptionTemplate,
		HomepageTemplate:    defaults.Repo.HomepageTemplate,
		Private:             defaults.Repo.Private,
		SSHKeyFile:          defaults.Auth.SSHKeyFile,
		RepoName:            os.Getenv(repoNameEnv),
	}

	var err error
	if s.Remote, err = get("remote"); err != nil {
		return nil, err
	}

	rawRefs, err := get("refs")
	if err != nil {
		return nil, err
	}
	s.RefPatterns = SplitPatterns(rawRefs)

	rawCreate, err := get("gh-create")
	if err != nil {
		return nil, err
	}
	s.CreateEnabled = rawCreate == "true"

	overrides := []struct {
		name string
		dst  *string
	}{
		{"gh-token-file", &s.TokenFile},
		{"gh-desc", &s.DescriptionTemplate},
		{"gh-homepage", &s.HomepageTemplate},
		{"ssh-key-file", &s.SSHKeyFile},
		{"repo-name", &s.RepoName},
	}
	for _, o := range overrides {
		val, err := get(o.name)
		if err != nil {
			return nil, err
		}
		if val != "" {
			*o.dst = val
		}
	}

	rawPrivate, err := get("private")
	if err != nil {
		return nil, err
	}
	if rawPrivate != "" {
		s.Private = rawPrivate == "true"
	}

	s.TokenFile = os.ExpandEnv(s.TokenFile)
	s.SSHKeyFile = os.ExpandEnv(s.SSHKeyFile)

	return s, nil
}

// SplitPatterns parses the comma-separated ref-pattern list. Empty entries
// are dropped; an all-empty value yields nil, which triggers the
// default-branch fallback downstream.
func SplitPatterns(raw string) []string {
	var patterns []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
