package quant

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/spongeengine/spongequant/format"
)

const maxBufferSize = 512 * format.KiloByte

// Runner executes external toolchain commands. Output is streamed a line
// at a time with stderr merged into stdout, the way the tools interleave
// it themselves. Failures never surface as errors: a non-zero exit is
// reported as a synthetic transcript line and through the return value.
type Runner struct {
	// Env is appended to the inherited environment for every command.
	Env []string
}

// Run starts the command and streams its output into s. It returns the
// exit code, or -1 if the command could not be started or was killed.
func (r *Runner) Run(ctx context.Context, s *stream, name string, args ...string) int {
	s.linef("[DEBUG] Executing command: %s", displayCommand(name, args))

	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), r.Env...)
	setProcAttrs(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		s.linef("[ERROR] Failed to start command: %v", err)
		return -1
	}

	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		s.linef("[ERROR] Failed to start command: %v", err)
		return -1
	}

	// the child holds its own copy of the write end
	pw.Close()

	// exec.CommandContext only kills the direct child; quantization
	// drivers spawn their own workers, so take down the whole group.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			killProcessGroup(cmd)
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, maxBufferSize), maxBufferSize)
	for scanner.Scan() {
		s.line(scanner.Text())
	}

	pr.Close()
	cmd.Wait()
	close(done)

	code := cmd.ProcessState.ExitCode()
	if code != 0 {
		s.linef("[ERROR] Command returned non-zero exit code: %d", code)
	}

	return code
}

func displayCommand(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
