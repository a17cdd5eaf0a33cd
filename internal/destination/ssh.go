package destination

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SecureShell is the remote-host destination variant, driving `ssh` and
// `rsync` as subprocesses over a private key — grounded on galeone/bacup's
// remotes/ssh.rs, which does the same (it shells out rather than using an
// SSH library for the data-plane transfer; only key validation benefits
// from a library).
type SecureShell struct {
	name       string
	host       string
	port       int
	username   string
	privateKey string
}

// NewSecureShell parses the private key with golang.org/x/crypto/ssh to
// confirm it is present, well-formed, and unencrypted (matching the
// original's "no passphrase support" limitation, documented in SPEC_FULL.md
// §4.5), then runs a trivial remote command (`true`) over ssh to confirm
// the host is reachable with that key before returning.
func NewSecureShell(name, host string, port int, username, privateKeyPath string) (*SecureShell, error) {
	if port == 0 {
		port = 22
	}

	keyBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("destination %q: reading private key %q: %w", name, privateKeyPath, err)
	}
	if _, err := ssh.ParsePrivateKey(keyBytes); err != nil {
		return nil, fmt.Errorf("destination %q: private key %q: %w (encrypted keys are not supported)",
			name, privateKeyPath, err)
	}

	if _, err := exec.LookPath("ssh"); err != nil {
		return nil, fmt.Errorf("destination %q: ssh not found on PATH: %w", name, err)
	}
	if _, err := exec.LookPath("rsync"); err != nil {
		return nil, fmt.Errorf("destination %q: rsync not found on PATH: %w", name, err)
	}

	s := &SecureShell{
		name:       name,
		host:       host,
		port:       port,
		username:   username,
		privateKey: privateKeyPath,
	}
	if err := s.run(context.Background(), "ssh", append(s.sshArgs(s.remoteTargetHost()), "true")...); err != nil {
		return nil, fmt.Errorf("destination %q: connectivity check against %s failed: %w", name, s.remoteTargetHost(), err)
	}
	return s, nil
}

func (s *SecureShell) Name() string { return s.name }

func (s *SecureShell) sshArgs(extra ...string) []string {
	base := []string{
		"-i", s.privateKey,
		"-p", fmt.Sprintf("%d", s.port),
		"-o", "StrictHostKeyChecking=no",
		"-o", "BatchMode=yes",
	}
	return append(base, extra...)
}

func (s *SecureShell) remoteTarget(remote string) string {
	return fmt.Sprintf("%s@%s:%s", s.username, s.host, remote)
}

func (s *SecureShell) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("destination %q: %s failed: %w\n%s", s.name, name, err, out)
	}
	return nil
}

// ensureRemoteDir creates remoteDir (and any missing parents) on the far
// side via ssh mkdir -p, since rsync will not create intermediate
// directories for us.
func (s *SecureShell) ensureRemoteDir(ctx context.Context, remoteDir string) error {
	return s.run(ctx, "ssh", append(s.sshArgs(s.remoteTargetHost()), "mkdir", "-p", remoteDir)...)
}

func (s *SecureShell) remoteTargetHost() string {
	return fmt.Sprintf("%s@%s", s.username, s.host)
}

func (s *SecureShell) rsyncArgs(extra ...string) []string {
	base := []string{
		"-az",
		"-e", fmt.Sprintf("ssh -i %s -p %d -o StrictHostKeyChecking=no -o BatchMode=yes", s.privateKey, s.port),
	}
	return append(base, extra...)
}

func (s *SecureShell) UploadFile(ctx context.Context, local, remote string) error {
	if err := s.ensureRemoteDir(ctx, remoteParent(remote)); err != nil {
		return err
	}
	return s.run(ctx, "rsync", s.rsyncArgs(local, s.remoteTarget(remote))...)
}

// UploadFolder mirrors the original's upload_folder: it strips the common
// prefix already computed by the pipeline from each local path and rsyncs
// every file individually into remote, preserving the relative directory
// layout under prefix — matching spec.md §4.1's classification where a
// multi-artifact uncompressed folder is uploaded file-by-file.
func (s *SecureShell) UploadFolder(ctx context.Context, locals []string, prefix, remote string) error {
	if err := s.ensureRemoteDir(ctx, remote); err != nil {
		return err
	}
	for _, local := range locals {
		rel := relativeToPrefix(local, prefix)
		dest := path.Join(remote, rel)
		if dir := path.Dir(rel); dir != "." {
			if err := s.ensureRemoteDir(ctx, path.Join(remote, dir)); err != nil {
				return err
			}
		}
		if err := s.run(ctx, "rsync", s.rsyncArgs(local, s.remoteTarget(dest))...); err != nil {
			return err
		}
	}
	return nil
}

func (s *SecureShell) UploadFileCompressed(ctx context.Context, local, remote string) error {
	compressed, err := compressFile(local)
	if err != nil {
		return err
	}
	defer os.Remove(compressed)

	dest := CompressedFileName(remote, time.Now())
	if err := s.ensureRemoteDir(ctx, remoteParent(dest)); err != nil {
		return err
	}
	return s.run(ctx, "rsync", s.rsyncArgs(compressed, s.remoteTarget(dest))...)
}

func (s *SecureShell) UploadFolderCompressed(ctx context.Context, localDir, remote string) error {
	compressed, err := compressFolder(localDir)
	if err != nil {
		return err
	}
	defer os.Remove(compressed)

	dest := CompressedFolderName(remote, time.Now())
	if err := s.ensureRemoteDir(ctx, remoteParent(dest)); err != nil {
		return err
	}
	return s.run(ctx, "rsync", s.rsyncArgs(compressed, s.remoteTarget(dest))...)
}

// Enumerate lists remoteDir's immediate children via `find -maxdepth 1`,
// run over ssh, for the retention controller per spec.md §4.2.
func (s *SecureShell) Enumerate(ctx context.Context, remoteDir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "ssh",
		append(s.sshArgs(s.remoteTargetHost()), "find", remoteDir, "-maxdepth", "1", "-mindepth", "1")...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("destination %q: listing %q: %w", s.name, remoteDir, err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	var entries []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			entries = append(entries, l)
		}
	}
	sort.Strings(entries)
	return entries, nil
}

func (s *SecureShell) Delete(ctx context.Context, remote string) error {
	return s.run(ctx, "ssh", append(s.sshArgs(s.remoteTargetHost()), "rm", "-rf", remote)...)
}
