package portal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const terminateGrace = 500 * time.Millisecond

// browserProcess owns the dedicated browser started for one session.
// Close terminates it on every exit path; a nil command means an attached,
// externally managed browser and Close is a no-op.
type browserProcess struct {
	cmd    *exec.Cmd
	done   chan struct{}
	logger *zap.Logger

	waitErr   error
	closeOnce sync.Once
}

// startBrowser launches command with args. The debug port and profile dir
// are expected in args.
func startBrowser(command string, args []string, logger *zap.Logger) (*browserProcess, error) {
	if command == "" {
		return &browserProcess{logger: logger}, nil
	}

	cmd := exec.Command(command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start browser %q: %w", command, err)
	}

	p := &browserProcess{
		cmd:    cmd,
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	logger.Info("Browser process started", zap.Int("pid", cmd.Process.Pid), zap.String("command", command))
	return p, nil
}

// Alive reports whether the process is still running. Attached browsers
// are always reported alive.
func (p *browserProcess) Alive() bool {
	if p.cmd == nil {
		return true
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Close asks the browser to exit and kills it if it is still alive after a
// short grace period.
func (p *browserProcess) Close() error {
	if p.cmd == nil {
		return nil
	}

	var err error
	p.closeOnce.Do(func() {
		if !p.Alive() {
			return
		}
		pid := p.cmd.Process.Pid

		if sigErr := p.cmd.Process.Signal(os.Interrupt); sigErr == nil {
			select {
			case <-p.done:
				p.logger.Info("Browser process exited", zap.Int("pid", pid))
				return
			case <-time.After(terminateGrace):
			}
		}

		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = fmt.Errorf("failed to kill browser process %d: %w", pid, killErr)
			return
		}
		<-p.done
		p.logger.Info("Browser process killed", zap.Int("pid", pid))
	})
	return err
}
