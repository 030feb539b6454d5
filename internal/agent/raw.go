package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/db"
)

// RawAgent runs a bot's entry point as a plain local process, with no
// sandboxing. Intended for trusted development bots, as configured by
// RuntimeRaw.
type RawAgent struct {
	processAgent

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	waitWg sync.WaitGroup
}

// NewRawAgent returns a BotAgent that runs bot.EntryPoint directly on the
// host, matching ProcessAgent in the original Python engine.
func NewRawAgent(bot db.Bot, logger *zap.Logger) *RawAgent {
	a := &RawAgent{processAgent: newProcessAgent(bot, logger.Named("raw_agent"))}
	return a
}

// Start launches the entry point with its working directory set to the
// script's own directory, matching the reference engine's `cwd=module_path.parent`.
func (a *RawAgent) Start(ctx context.Context, onMessage OnMessage) error {
	entryPoint := a.bot.EntryPoint
	dir := filepath.Dir(entryPoint)
	base := filepath.Base(entryPoint)

	cmd := exec.Command("python3", base)
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("raw agent: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("raw agent: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("raw agent: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("raw agent: start: %w", err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.processAgent.stdin = stdin
	a.setAlive(true)
	a.onMessage = onMessage

	a.waitWg.Add(2)
	go a.listen(stdout, onMessage, &a.waitWg)
	go a.listen(stderr, onMessage, &a.waitWg)

	go func() {
		a.waitWg.Wait()
		_ = cmd.Wait()
		a.setAlive(false)
	}()

	a.logger.Info("agent started")
	return nil
}

func (a *RawAgent) listen(r io.Reader, onMessage OnMessage, wg *sync.WaitGroup) {
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

// Stop terminates the child: SIGTERM, wait up to stopGrace, then SIGKILL.
func (a *RawAgent) Stop(ctx context.Context) error {
	if a.cmd == nil || a.cmd.Process == nil {
		return nil
	}
	a.logger.Info("stopping agent")

	done := make(chan struct{})
	go func() {
		a.waitWg.Wait()
		close(done)
	}()

	if err := a.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		a.logger.Warn("failed to signal process, it may already be gone", zap.Error(err))
	}

	select {
	case <-done:
	case <-time.After(stopGrace):
		a.logger.Warn("process did not terminate gracefully, killing it")
		if err := a.cmd.Process.Kill(); err != nil {
			a.logger.Warn("failed to kill process", zap.Error(err))
		}
		<-done
	}

	a.setAlive(false)
	a.logger.Info("agent stopped")
	return nil
}
