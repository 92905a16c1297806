// Package mirror runs one hook invocation: decide the destination remote,
// resolve the eligible refs, read the push event, and forward the
// intersection.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/schaermu/mirrorhook/internal/config"
	"github.com/schaermu/mirrorhook/internal/event"
	"github.com/schaermu/mirrorhook/internal/gitrepo"
	"github.com/schaermu/mirrorhook/internal/provision"
	"github.com/schaermu/mirrorhook/internal/refs"
)

// Engine orchestrates a single post-receive invocation
type Engine struct {
	settings *config.Settings
	store    config.Store
	git      gitrepo.Client
	creator  provision.Creator
	logger   *slog.Logger
	dryRun   bool
}

// NewEngine creates an engine for one invocation
func NewEngine(settings *config.Settings, store config.Store, gitClient gitrepo.Client, creator provision.Creator, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		settings: settings,
		store:    store,
		git:      gitClient,
		creator:  creator,
		logger:   logger,
		dryRun:   dryRun,
	}
}

// Run executes the invocation. input is the post-receive event stream, out is
// the operator-facing summary channel. A nil error means success, including
// the frequent no-op cases (nothing configured, push touched no mirrored
// ref). Any returned error is fatal for the invocation; nothing is retried.
func (e *Engine) Run(ctx context.Context, input io.Reader, out io.Writer) error {
	remote := e.settings.Remote

	if remote == "" {
		if !e.settings.CreateEnabled {
			e.logger.Info("no remote configured and auto-create disabled, nothing to mirror")
			return nil
		}

		var err error
		remote, err = e.provisionRemote(ctx)
		if err != nil {
			return err
		}
	}

	resolved, err := refs.NewResolver(e.git).Resolve(ctx, e.settings.RefPatterns)
	if err != nil {
		return fmt.Errorf("failed to resolve mirrored refs: %w", err)
	}
	e.logger.Debug("resolved mirrored refs",
		"patterns", e.settings.RefPatterns,
		"refs", resolved)

	updates, err := event.Read(input)
	if err != nil {
		return err
	}

	forward := refs.ForwardingSet(event.RefNames(updates), resolved)
	if len(forward) == 0 {
		e.logger.Info("push touched no mirrored ref", "updated", len(updates))
		return nil
	}

	fmt.Fprintf(out, "mirroring %d ref(s) to %s\n", len(forward), remoteLabel(remote))
	for _, name := range forward {
		fmt.Fprintf(out, "  %s\n", name)
	}

	if e.dryRun {
		e.logger.Info("dry run: skipping push", "refs", forward)
		return nil
	}

	e.logger.Info("pushing refs", "remote", remote, "refs", forward)
	if err := e.git.Push(ctx, remote, forward); err != nil {
		return fmt.Errorf("failed to mirror refs: %w", err)
	}

	return nil
}

// provisionRemote creates the destination repository and persists its push
// URL so later invocations skip provisioning. A failed push afterwards still
// leaves the URL persisted, so the next push retries the transfer only.
func (e *Engine) provisionRemote(ctx context.Context) (string, error) {
	name := e.settings.RepoName
	if name == "" {
		return "", fmt.Errorf("cannot create repository: repository name not set (GL_REPO and %s are empty)", config.Key("repo-name"))
	}

	if e.dryRun {
		e.logger.Info("dry run: skipping repository creation", "name", name)
		return "", nil
	}

	req := provision.Request{
		Name:        name,
		Description: provision.ExpandTemplate(e.settings.DescriptionTemplate, name),
		Homepage:    provision.ExpandTemplate(e.settings.HomepageTemplate, name),
		Private:     e.settings.Private,
	}

	e.logger.Info("creating remote repository", "name", name, "private", req.Private)
	remote, err := e.creator.CreateRepository(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to provision remote: %w", err)
	}

	if err := e.store.ConfigSet(ctx, config.Key("remote"), remote); err != nil {
		return "", fmt.Errorf("failed to persist remote URL: %w", err)
	}
	e.logger.Info("remote repository created", "remote", remote)

	return remote, nil
}

// remoteLabel names the destination in the summary. The remote is only empty
// on a dry run that skipped provisioning.
func remoteLabel(remote string) string {
	if remote == "" {
		return "(unprovisioned remote, dry run)"
	}
	return remote
}
