package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/db"
)

// SandboxedAgent runs a bot's entry point inside a locked-down Docker
// container: no network, capped CPU and memory, every capability dropped,
// and the source file mounted read-only. Used when AgentsConfig.RuntimeClass
// is RuntimeSandboxed, matching DockerAgent in the original Python engine.
type SandboxedAgent struct {
	processAgent

	docker        *dockerclient.Client
	containerImage string
	containerID   string
	hijacked      *hijackedConn
	waitWg        sync.WaitGroup
}

// hijackedConn wraps the attach stream so SendMessage and the reader
// goroutines can share it without importing the types package elsewhere.
type hijackedConn struct {
	conn   io.Writer
	reader io.Reader
	closer io.Closer
}

func (h *hijackedConn) Write(p []byte) (int, error) {
	return h.conn.Write(p)
}

// NewSandboxedAgent returns a BotAgent that runs bot.EntryPoint inside a
// Docker container built from containerImage.
func NewSandboxedAgent(bot db.Bot, containerImage string, docker *dockerclient.Client, logger *zap.Logger) *SandboxedAgent {
	return &SandboxedAgent{
		processAgent:   newProcessAgent(bot, logger.Named("sandboxed_agent")),
		docker:         docker,
		containerImage: containerImage,
	}
}

// containerName returns the deterministic container name for this bot,
// matching the reference engine's f'agent-{bot.gid}'.
func (a *SandboxedAgent) containerName() string {
	return fmt.Sprintf("agent-%s", a.bot.GID.String())
}

// Start creates and runs the sandboxed container, attaching to its
// stdin/stdout/stderr streams. No network, 0.5 CPU, 250MiB memory, all
// capabilities dropped, source mounted read-only.
func (a *SandboxedAgent) Start(ctx context.Context, onMessage OnMessage) error {
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		CapDrop:     []string{"ALL"},
		Resources: container.Resources{
			NanoCPUs: 500_000_000, // 0.5 CPU
			Memory:   250 * 1024 * 1024,
		},
		Binds: []string{fmt.Sprintf("%s:/bot.py:ro", a.bot.EntryPoint)},
	}

	containerCfg := &container.Config{
		Image:        a.containerImage,
		Cmd:          []string{"python3", "/bot.py"},
		Env:          []string{"PYTHONUNBUFFERED=0"},
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		OpenStdin:    true,
		StdinOnce:    true,
		Tty:          false,
	}

	created, err := a.docker.ContainerCreate(ctx, containerCfg, hostConfig, &network.NetworkingConfig{}, nil, a.containerName())
	if err != nil {
		return fmt.Errorf("sandboxed agent: create container: %w", err)
	}
	a.containerID = created.ID

	attach, err := a.docker.ContainerAttach(ctx, a.containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("sandboxed agent: attach: %w", err)
	}
	a.hijacked = &hijackedConn{conn: attach.Conn, reader: attach.Reader, closer: attach.Conn}
	a.processAgent.stdin = a.hijacked

	if err := a.docker.ContainerStart(ctx, a.containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("sandboxed agent: start container: %w", err)
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	a.waitWg.Add(1)
	go func() {
		defer a.waitWg.Done()
		defer stdoutW.Close()
		defer stderrW.Close()
		if _, err := stdcopy.StdCopy(stdoutW, stderrW, a.hijacked.reader); err != nil && err != io.EOF {
			a.logger.Debug("attach stream closed", zap.Error(err))
		}
	}()

	a.waitWg.Add(2)
	go a.listen(stdoutR, onMessage, &a.waitWg)
	go a.listen(stderrR, onMessage, &a.waitWg)

	a.setAlive(true)
	a.onMessage = onMessage

	go func() {
		statusCh, errCh := a.docker.ContainerWait(context.Background(), a.containerID, container.WaitConditionNotRunning)
		select {
		case <-statusCh:
		case <-errCh:
		}
		a.setAlive(false)
	}()

	a.logger.Info("agent started", zap.String("container_id", a.containerID))
	return nil
}

func (a *SandboxedAgent) listen(r io.Reader, onMessage OnMessage, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		dispatchLine(a, a.bot.GID, cp, a.logger, onMessage)
	}
}

// Stop stops and removes the container. Docker's own stop grace period
// (stopGrace) plays the same role as SIGTERM-then-SIGKILL for a raw process.
func (a *SandboxedAgent) Stop(ctx context.Context) error {
	if a.containerID == "" {
		return nil
	}
	a.logger.Info("stopping agent")

	timeout := int(stopGrace.Seconds())
	if err := a.docker.ContainerStop(ctx, a.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		a.logger.Warn("failed to stop container", zap.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace+2*time.Second)
	defer cancel()
	if err := a.docker.ContainerRemove(stopCtx, a.containerID, container.RemoveOptions{Force: true}); err != nil {
		a.logger.Warn("failed to remove container", zap.Error(err))
	}

	if a.hijacked != nil && a.hijacked.closer != nil {
		_ = a.hijacked.closer.Close()
	}

	a.setAlive(false)
	a.logger.Info("agent stopped")
	return nil
}
