package supervisor

import (
	"os/exec"
	"syscall"
)

// osProcess adapts exec.Cmd to the process interface.
type osProcess struct {
	cmd *exec.Cmd
}

func startOSProcess(c Command) (process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	// Worker output goes to its own log files; we only track the process.
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osProcess{cmd: cmd}, nil
}

func (p *osProcess) Signal(sig syscall.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *osProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *osProcess) Wait() error {
	return p.cmd.Wait()
}
