// Package dockersandbox implements sandbox.Sandbox on top of a Docker
// container, grounded on
// uzukizheng-trpc-agent-go/codeexecutor/container/container.go's
// exec-via-ContainerExecCreate/Attach pattern, extended with file transfer
// (CopyToContainer/CopyFromContainer) and Fork (container commit + recreate)
// since spec.md §6 needs a full filesystem+exec+fork capability, not just
// code execution.
package dockersandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	archive "github.com/moby/go-archive"

	"github.com/agentloom/orchestrator/sandbox"
)

const defaultWorkdir = "/workspace"

// Options configures a Sandbox's backing container.
type Options struct {
	Image      string
	WorkingDir string // defaults to "/workspace"
}

// Sandbox implements sandbox.Sandbox against one Docker container.
type Sandbox struct {
	client      *client.Client
	containerID string
	workdir     string
	ownsClient  bool
}

// New creates a fresh container from opts and returns a Sandbox bound to it.
func New(ctx context.Context, cli *client.Client, opts Options) (*Sandbox, error) {
	ownsClient := false
	if cli == nil {
		var err error
		cli, err = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("dockersandbox: new client: %w", err)
		}
		ownsClient = true
	}
	if opts.Image == "" {
		return nil, fmt.Errorf("dockersandbox: image is required")
	}
	workdir := opts.WorkingDir
	if workdir == "" {
		workdir = defaultWorkdir
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:      opts.Image,
		WorkingDir: workdir,
		Cmd:        []string{"tail", "-f", "/dev/null"},
		Tty:        true,
	}, &container.HostConfig{
		AutoRemove: true,
	}, nil, nil, containerName())
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: create container: %w", err)
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("dockersandbox: start container: %w", err)
	}

	return &Sandbox{client: cli, containerID: resp.ID, workdir: workdir, ownsClient: ownsClient}, nil
}

func containerName() string {
	return "agentloom-sandbox-" + uuid.New().String()
}

// Exec runs cmd, time-bounded by ctx, per spec.md §6 and §4 "Timeouts".
func (s *Sandbox) Exec(ctx context.Context, cmd []string) (sandbox.ExecResult, error) {
	execResp, err := s.client.ContainerExecCreate(ctx, s.containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   s.workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("dockersandbox: exec create: %w", err)
	}

	hijacked, err := s.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("dockersandbox: exec attach: %w", err)
	}
	defer hijacked.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, hijacked.Reader); err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("dockersandbox: read exec output: %w", err)
	}

	inspect, err := s.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("dockersandbox: exec inspect: %w", err)
	}

	return sandbox.ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// WriteFile writes content to path inside the container via a single-entry
// tar stream, the mechanism CopyToContainer requires.
func (s *Sandbox) WriteFile(ctx context.Context, filePath string, content []byte) error {
	full := s.resolve(filePath)
	dir, name := path.Split(full)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(content)),
	}); err != nil {
		return fmt.Errorf("dockersandbox: write tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("dockersandbox: write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("dockersandbox: close tar: %w", err)
	}

	if err := s.client.CopyToContainer(ctx, s.containerID, dir, &buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("dockersandbox: copy to container: %w", err)
	}
	return nil
}

// ReadFile reads path's contents out of the container via CopyFromContainer.
func (s *Sandbox) ReadFile(ctx context.Context, filePath string) ([]byte, error) {
	full := s.resolve(filePath)
	reader, _, err := s.client.CopyFromContainer(ctx, s.containerID, full)
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: copy from container: %w", err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	if _, err := tr.Next(); err != nil {
		return nil, fmt.Errorf("dockersandbox: read tar header: %w", err)
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: read tar body: %w", err)
	}
	return data, nil
}

// DeleteFile removes path inside the container.
func (s *Sandbox) DeleteFile(ctx context.Context, filePath string) error {
	res, err := s.Exec(ctx, []string{"rm", "-f", s.resolve(filePath)})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("dockersandbox: rm %s: exit %d: %s", filePath, res.ExitCode, res.Stderr)
	}
	return nil
}

// ListDirectory lists entry names at path inside the container.
func (s *Sandbox) ListDirectory(ctx context.Context, dirPath string) ([]string, error) {
	res, err := s.Exec(ctx, []string{"ls", "-1A", s.resolve(dirPath)})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("dockersandbox: ls %s: exit %d: %s", dirPath, res.ExitCode, res.Stderr)
	}
	trimmed := strings.TrimSpace(res.Stdout)
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// SetWorkdir changes the directory Exec and relative paths resolve against.
func (s *Sandbox) SetWorkdir(ctx context.Context, dirPath string) error {
	s.workdir = s.resolve(dirPath)
	return nil
}

// ExportDirectory copies containerPath out to hostPath, untarring the
// CopyFromContainer stream via moby/go-archive.
func (s *Sandbox) ExportDirectory(ctx context.Context, containerPath, hostPath string) (string, error) {
	reader, _, err := s.client.CopyFromContainer(ctx, s.containerID, s.resolve(containerPath))
	if err != nil {
		return "", fmt.Errorf("dockersandbox: copy from container: %w", err)
	}
	defer reader.Close()

	if err := archive.Untar(reader, hostPath, &archive.TarOptions{NoLchown: true}); err != nil {
		return "", fmt.Errorf("dockersandbox: untar export: %w", err)
	}
	return hostPath, nil
}

// Fork commits the running container into a new image and starts a fresh
// container from it, giving the child an independent, mutable filesystem
// snapshot (spec.md §4.5, §6 "fork() → sandbox").
func (s *Sandbox) Fork(ctx context.Context) (sandbox.Sandbox, error) {
	commitResp, err := s.client.ContainerCommit(ctx, s.containerID, container.CommitOptions{
		Reference: "agentloom-sandbox-fork:" + uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: commit: %w", err)
	}

	child, err := New(ctx, s.client, Options{Image: commitResp.ID, WorkingDir: s.workdir})
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: start fork: %w", err)
	}
	return child, nil
}

// Close stops and removes the backing container (AutoRemove handles removal
// once the stop completes).
func (s *Sandbox) Close(ctx context.Context) error {
	timeout := 5
	if err := s.client.ContainerStop(ctx, s.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("dockersandbox: stop container: %w", err)
	}
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

func (s *Sandbox) resolve(p string) string {
	if path.IsAbs(p) {
		return p
	}
	return path.Join(s.workdir, p)
}

var _ sandbox.Sandbox = (*Sandbox)(nil)

// ExecTimeout is a 60-second exec bound (spec.md §4 "Timeouts"). Nothing in
// this module applies it; Exec is bounded only by ctx's deadline.
const ExecTimeout = 60 * time.Second
