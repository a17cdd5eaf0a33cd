package destination

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// snapshotCommitMessage is the literal commit title every VersionControl
// push uses, per spec.md §8 scenario 6.
const snapshotCommitMessage = "[bacup] snapshot"

// VersionControl is the git-repository destination variant: every upload is
// a commit pushed to a configured branch. Grounded on galeone/bacup's
// remotes/git.rs. No third-party git library in the example pack offers
// clone/push over ssh with a deploy key as simply as shelling out to the
// `git` binary, which is what the original does too (see DESIGN.md).
type VersionControl struct {
	name     string
	localDir string
	branch   string
	host     string
	port     int
	username string

	// mu serializes every upload method: each runs a switch/pull/add/commit/push
	// sequence against the same working tree, and those must never
	// interleave across concurrent uploads.
	mu sync.Mutex
}

// NewVersionControl clones remoteURL into localDir (if not already a
// checkout) using privateKeyPath for authentication, confirming the
// repository is reachable at construction time, per spec.md §4.5. host,
// port, and username round out the adapter's configuration surface to match
// SecureShell's even though the transport itself is driven by remoteURL.
// privateKeyPath is validated the same way NewSecureShell validates its key
// — present, well-formed, and unencrypted — since both adapters share the
// same "no passphrase support" limitation.
func NewVersionControl(ctx context.Context, name, remoteURL, localDir, privateKeyPath, branch, host string, port int, username string) (*VersionControl, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("destination %q: git not found on PATH: %w", name, err)
	}

	keyBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("destination %q: reading private key %q: %w", name, privateKeyPath, err)
	}
	if _, err := ssh.ParsePrivateKey(keyBytes); err != nil {
		return nil, fmt.Errorf("destination %q: private key %q: %w (encrypted keys are not supported)",
			name, privateKeyPath, err)
	}

	if branch == "" {
		branch = "main"
	}

	v := &VersionControl{
		name:     name,
		localDir: localDir,
		branch:   branch,
		host:     host,
		port:     port,
		username: username,
	}

	if _, err := os.Stat(filepath.Join(localDir, ".git")); err == nil {
		if err := v.run(ctx, privateKeyPath, "fetch", "origin"); err != nil {
			return nil, fmt.Errorf("destination %q: fetching existing checkout: %w", name, err)
		}
		if err := v.run(ctx, privateKeyPath, "switch", branch); err != nil {
			return nil, fmt.Errorf("destination %q: switching to branch %q: %w", name, branch, err)
		}
		return v, nil
	}

	if err := os.MkdirAll(filepath.Dir(localDir), 0o755); err != nil {
		return nil, fmt.Errorf("destination %q: preparing %q: %w", name, localDir, err)
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--branch", branch, remoteURL, localDir)
	cmd.Env = append(os.Environ(), sshCommandEnv(privateKeyPath))
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("destination %q: cloning %q: %w\n%s", name, remoteURL, err, out)
	}
	return v, nil
}

func sshCommandEnv(privateKeyPath string) string {
	return fmt.Sprintf("GIT_SSH_COMMAND=ssh -i %s -o StrictHostKeyChecking=no -o BatchMode=yes", privateKeyPath)
}

func (v *VersionControl) Name() string { return v.name }

func (v *VersionControl) run(ctx context.Context, privateKeyPath string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = v.localDir
	if privateKeyPath != "" {
		cmd.Env = append(os.Environ(), sshCommandEnv(privateKeyPath))
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("destination %q: git %v failed: %w\n%s", v.name, args, err, out)
	}
	return nil
}

// commitAndPush runs the full switch/pull/add/commit/push sequence against
// v.branch, mirroring remotes/git.rs's update flow, always committing under
// the literal title snapshotCommitMessage — spec.md §8 scenario 6 requires
// every push to carry that one title, not a per-upload message.
func (v *VersionControl) commitAndPush(ctx context.Context) error {
	if err := v.run(ctx, "", "switch", v.branch); err != nil {
		return err
	}
	if err := v.run(ctx, "", "pull", "origin", v.branch); err != nil {
		return err
	}
	if err := v.run(ctx, "", "add", "-A"); err != nil {
		return err
	}
	if err := v.run(ctx, "", "commit", "-m", snapshotCommitMessage); err != nil {
		return err
	}
	return v.run(ctx, "", "push", "origin", v.branch)
}

func (v *VersionControl) UploadFile(ctx context.Context, local, remote string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	dest := filepath.Join(v.localDir, filepath.FromSlash(remote))
	if err := copyFile(local, dest); err != nil {
		return fmt.Errorf("destination %q: copying %q: %w", v.name, local, err)
	}
	return v.commitAndPush(ctx)
}

// UploadFolder writes each entry of locals to remote / (local − prefix), the
// same contract every other Destination implements (spec.md §4.5), then
// commits the subdirectory rooted at remote in one snapshot commit.
func (v *VersionControl) UploadFolder(ctx context.Context, locals []string, prefix, remote string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, local := range locals {
		dest := filepath.Join(v.localDir, filepath.FromSlash(remote), filepath.FromSlash(relativeToPrefix(local, prefix)))
		if err := copyFile(local, dest); err != nil {
			return fmt.Errorf("destination %q: copying %q: %w", v.name, local, err)
		}
	}
	return v.commitAndPush(ctx)
}

func (v *VersionControl) UploadFileCompressed(ctx context.Context, local, remote string) error {
	compressed, err := compressFile(local)
	if err != nil {
		return err
	}
	defer os.Remove(compressed)

	v.mu.Lock()
	defer v.mu.Unlock()

	dest := filepath.Join(v.localDir, filepath.FromSlash(CompressedFileName(remote, time.Now())))
	if err := copyFile(compressed, dest); err != nil {
		return fmt.Errorf("destination %q: placing compressed file: %w", v.name, err)
	}
	return v.commitAndPush(ctx)
}

func (v *VersionControl) UploadFolderCompressed(ctx context.Context, localDir, remote string) error {
	compressed, err := compressFolder(localDir)
	if err != nil {
		return err
	}
	defer os.Remove(compressed)

	v.mu.Lock()
	defer v.mu.Unlock()

	dest := filepath.Join(v.localDir, filepath.FromSlash(CompressedFolderName(remote, time.Now())))
	if err := copyFile(compressed, dest); err != nil {
		return fmt.Errorf("destination %q: placing compressed folder: %w", v.name, err)
	}
	return v.commitAndPush(ctx)
}

// Enumerate and Delete have no meaningful operation against a commit
// history — retention for VersionControl is a Non-goal per spec.md §4.2
// ("retention only applies to compressed artifacts on backends that
// support listing"), so both return ErrUnsupported.
func (v *VersionControl) Enumerate(ctx context.Context, remoteDir string) ([]string, error) {
	return nil, ErrUnsupported
}

func (v *VersionControl) Delete(ctx context.Context, remote string) error {
	return ErrUnsupported
}
