// Package infra supervises the external backends the system depends
// on — graph store, vector store, embedding server — as docker
// containers with canonical names. It is a convenience for local use;
// pointing configuration at already-running services bypasses it
// entirely.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

const (
	// DefaultWaitTimeout bounds one backend's health wait loop.
	DefaultWaitTimeout = 30 * time.Second
	// pollInterval between health probes while waiting.
	pollInterval = 500 * time.Millisecond
	// portScanRange is how far past the default port we look for a
	// free one.
	portScanRange = 20
)

// HealthFunc probes one backend at a URL.
type HealthFunc func(ctx context.Context, url string) error

// Backend describes one supervised container.
type Backend struct {
	Name          string // short name for logs
	Image         string
	ContainerName string // canonical, stable across runs
	DefaultPort   int
	ContainerPort int
	Args          []string // extra docker run args (volumes, env)
	URL           func(port int) string
	Health        HealthFunc
}

// containerState is what docker inspect reports, plus "absent".
type containerState string

const (
	stateRunning containerState = "running"
	stateStopped containerState = "exited"
	stateFailed  containerState = "failed" // created, dead, restarting
	stateAbsent  containerState = "absent"
)

// Supervisor ensures backends are running and healthy.
type Supervisor struct {
	docker      string
	waitTimeout time.Duration
	logger      *slog.Logger
}

// Options configures a Supervisor.
type Options struct {
	DockerBinary string
	WaitTimeout  time.Duration
	Logger       *slog.Logger
}

func New(opts Options) *Supervisor {
	docker := opts.DockerBinary
	if docker == "" {
		docker = "docker"
	}
	wait := opts.WaitTimeout
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		docker:      docker,
		waitTimeout: wait,
		logger:      logger.With("component", "infra"),
	}
}

// Available reports whether the docker binary responds at all.
func (s *Supervisor) Available(ctx context.Context) bool {
	return exec.CommandContext(ctx, s.docker, "version", "--format", "{{.Server.Version}}").Run() == nil
}

// Ensure drives one backend to running-and-healthy and returns its URL.
func (s *Supervisor) Ensure(ctx context.Context, b Backend) (string, error) {
	state, err := s.inspect(ctx, b.ContainerName)
	if err != nil {
		return "", err
	}
	s.logger.Debug("backend state", "backend", b.Name, "state", state)

	switch state {
	case stateRunning:
		port, err := s.hostPort(ctx, b)
		if err != nil {
			return "", err
		}
		url := b.URL(port)
		if err := b.Health(ctx, url); err == nil {
			return url, nil
		}
		// Running but unhealthy: give it the wait loop before giving up.
		if err := s.waitHealthy(ctx, b, url); err != nil {
			return "", err
		}
		return url, nil

	case stateStopped:
		s.logger.Info("starting stopped backend", "backend", b.Name, "container", b.ContainerName)
		if err := s.run(ctx, "start", b.ContainerName); err != nil {
			return "", err
		}
		port, err := s.hostPort(ctx, b)
		if err != nil {
			return "", err
		}
		url := b.URL(port)
		if err := s.waitHealthy(ctx, b, url); err != nil {
			return "", err
		}
		return url, nil

	case stateFailed:
		s.logger.Warn("removing failed backend container", "backend", b.Name, "container", b.ContainerName)
		if err := s.run(ctx, "rm", "-f", b.ContainerName); err != nil {
			return "", err
		}
		return s.launch(ctx, b)

	default: // absent
		return s.launch(ctx, b)
	}
}

// launch picks a free port and runs a fresh container.
func (s *Supervisor) launch(ctx context.Context, b Backend) (string, error) {
	port, err := freePort(b.DefaultPort)
	if err != nil {
		return "", err
	}
	s.logger.Info("launching backend", "backend", b.Name, "image", b.Image, "port", port)

	args := []string{
		"run", "-d",
		"--name", b.ContainerName,
		"--restart", "unless-stopped",
		"-p", fmt.Sprintf("%d:%d", port, b.ContainerPort),
	}
	args = append(args, b.Args...)
	args = append(args, b.Image)

	if err := s.run(ctx, args...); err != nil {
		return "", err
	}
	url := b.URL(port)
	if err := s.waitHealthy(ctx, b, url); err != nil {
		return "", err
	}
	return url, nil
}

func (s *Supervisor) waitHealthy(ctx context.Context, b Backend, url string) error {
	deadline := time.Now().Add(s.waitTimeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = b.Health(ctx, url); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return fmt.Errorf("%w: %s not healthy after %s: %v", types.ErrTimeout, b.Name, s.waitTimeout, lastErr)
}

// inspect maps docker's status strings onto the four-state machine.
func (s *Supervisor) inspect(ctx context.Context, container string) (containerState, error) {
	out, err := exec.CommandContext(ctx, s.docker, "inspect", "-f", "{{.State.Status}}", container).Output()
	if err != nil {
		// docker inspect exits nonzero for unknown names.
		return stateAbsent, nil
	}
	switch strings.TrimSpace(string(out)) {
	case "running":
		return stateRunning, nil
	case "exited":
		return stateStopped, nil
	default:
		return stateFailed, nil
	}
}

// hostPort resolves the published host port of a running container.
func (s *Supervisor) hostPort(ctx context.Context, b Backend) (int, error) {
	out, err := exec.CommandContext(ctx, s.docker, "port", b.ContainerName,
		fmt.Sprintf("%d/tcp", b.ContainerPort)).Output()
	if err != nil {
		return 0, fmt.Errorf("resolve port for %s: %w", b.ContainerName, err)
	}
	// Output like "0.0.0.0:6333" (possibly multiple lines for v4/v6).
	line := strings.TrimSpace(strings.Split(string(out), "\n")[0])
	i := strings.LastIndexByte(line, ':')
	if i < 0 {
		return 0, fmt.Errorf("unexpected docker port output %q", line)
	}
	return strconv.Atoi(line[i+1:])
}

func (s *Supervisor) run(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, s.docker, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// freePort scans linearly from the preferred port for one we can bind.
func freePort(preferred int) (int, error) {
	for port := preferred; port < preferred+portScanRange; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in %d..%d", preferred, preferred+portScanRange-1)
}
