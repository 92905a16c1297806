package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Client provides the git operations the hook needs against the repository
// it runs in.
type Client interface {
	// ListRefs enumerates every reference name in the repository.
	ListRefs(ctx context.Context) ([]string, error)
	// DefaultBranch resolves the repository's default branch as a fully
	// qualified ref name.
	DefaultBranch(ctx context.Context) (string, error)
	// Push force-updates the given refs on the remote to their local values,
	// all in a single transfer.
	Push(ctx context.Context, remote string, refs []string) error
	// ConfigGet reads a git config value; a missing key yields "".
	ConfigGet(ctx context.Context, key string) (string, error)
	// ConfigSet writes a git config value.
	ConfigSet(ctx context.Context, key, value string) error
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	gitDir         string
	sshKeyFile     string
	httpsTokenFile string
}

// NewShellClient creates a git client operating on the repository at gitDir.
// An empty gitDir uses the process working directory, which is the repository
// itself when git invokes the hook.
func NewShellClient(gitDir string) *ShellClient {
	return &ShellClient{gitDir: gitDir}
}

// SetAuthFiles configures push authentication. Auth material lives in git
// config, which needs a constructed client to read, hence the two-phase setup.
func (c *ShellClient) SetAuthFiles(sshKeyFile, httpsTokenFile string) {
	c.sshKeyFile = sshKeyFile
	c.httpsTokenFile = httpsTokenFile
}

// ListRefs enumerates all references via for-each-ref.
func (c *ShellClient) ListRefs(ctx context.Context) ([]string, error) {
	cmd := c.command(ctx, "for-each-ref", "--format=%(refname)")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref failed: %w", commandError(err))
	}

	var refs []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}

// DefaultBranch resolves HEAD to its target ref. When HEAD is not symbolic it
// falls back to init.defaultBranch, then to refs/heads/main.
func (c *ShellClient) DefaultBranch(ctx context.Context) (string, error) {
	cmd := c.command(ctx, "symbolic-ref", "HEAD")
	output, err := cmd.Output()
	if err == nil {
		if ref := strings.TrimSpace(string(output)); ref != "" {
			return ref, nil
		}
	}

	name, err := c.ConfigGet(ctx, "init.defaultBranch")
	if err != nil {
		return "", err
	}
	if name == "" {
		name = "main"
	}
	return "refs/heads/" + name, nil
}

// Push sends all refs in one git push invocation, each as a forced refspec so
// the remote mirrors the local value even across history rewrites.
func (c *ShellClient) Push(ctx context.Context, remote string, refs []string) error {
	args := []string{"push", remote}
	for _, ref := range refs {
		args = append(args, "+"+ref+":"+ref)
	}

	cmd := c.command(ctx, args...)
	if err := c.configureAuth(cmd, remote); err != nil {
		return err
	}

	if err := c.runCommand(cmd); err != nil {
		return fmt.Errorf("git push to %s failed: %w", remote, err)
	}
	return nil
}

// ConfigGet reads a single config value. git exits 1 for a missing key, which
// is reported as an empty value, not an error.
func (c *ShellClient) ConfigGet(ctx context.Context, key string) (string, error) {
	cmd := c.command(ctx, "config", "--get", key)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("git config --get %s failed: %w", key, commandError(err))
	}
	return strings.TrimSpace(string(output)), nil
}

// ConfigSet writes a single config value.
func (c *ShellClient) ConfigSet(ctx context.Context, key, value string) error {
	if err := c.runCommand(c.command(ctx, "config", key, value)); err != nil {
		return fmt.Errorf("git config %s failed: %w", key, err)
	}
	return nil
}

func (c *ShellClient) command(ctx context.Context, args ...string) *exec.Cmd {
	if c.gitDir != "" {
		args = append([]string{"-C", c.gitDir}, args...)
	}
	return exec.CommandContext(ctx, "git", args...)
}

// configureAuth sets up authentication for git transfer operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// Use GIT_SSH_COMMAND to specify the SSH key.
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.httpsTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}

		tokenStr := strings.TrimSpace(string(token))

		// Pass the token via environment variable and configure a git
		// credential helper that reads it. This avoids embedding the
		// token directly in a shell expression.
		cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
		cmd.Env = append(cmd.Env, "MIRRORHOOK_GIT_TOKEN="+tokenStr)
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$MIRRORHOOK_GIT_TOKEN"; }; f`,
		)

		return nil
	}

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "push", "config").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with stderr on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// commandError augments errors from Output() with the captured stderr.
func commandError(err error) error {
	if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, string(exitErr.Stderr))
	}
	return err
}
