package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bootstrap"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/vm"
)

type shell struct {
	vm     *vm.VM
	stdout io.Writer
	stderr io.Writer
}

func newShell(rt *bootstrap.Runtime, stdout, stderr io.Writer) (*shell, error) {
	v, err := rt.NewVM()
	if err != nil {
		return nil, err
	}
	return &shell{vm: v, stdout: stdout, stderr: stderr}, nil
}

func (s *shell) close() {
	_ = s.vm.Close()
}

// timeoutCheck terminates scripts that outlive the watchdog.
func timeoutCheck(log *zap.Logger) vm.TimeoutCheck {
	return func(id uuid.UUID, elapsed time.Duration) bool {
		log.Warn("script timed out", zap.String("vm", id.String()), zap.Duration("elapsed", elapsed))
		return true
	}
}

func (s *shell) exec(ctx context.Context, script string) (*vm.Result, error) {
	res, err := s.vm.Execute(ctx, script)
	if res != nil {
		for _, e := range res.Console {
			w := s.stdout
			if e.Level == "error" || e.Level == "warn" {
				w = s.stderr
			}
			fmt.Fprintln(w, e.Message)
		}
	}
	return res, err
}

func (s *shell) eval(ctx context.Context, script string) int {
	res, err := s.exec(ctx, script)
	if err != nil {
		fmt.Fprintf(s.stderr, "Exception: %v\n", err)
		return 3
	}
	fmt.Fprintln(s.stdout, display(res.Value))
	return 0
}

func (s *shell) runFiles(ctx context.Context, paths []string) int {
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(s.stderr, "Could not open file: %s\n", path)
			return 1
		}
		if mt := mimetype.Detect(src); !isText(mt) {
			fmt.Fprintf(s.stderr, "Not a script: %s (%s)\n", path, mt)
			return 1
		}
		if _, err := s.exec(ctx, string(src)); err != nil {
			fmt.Fprintf(s.stderr, "Exception: %s: %v\n", path, err)
			return 3
		}
	}
	return 0
}

func (s *shell) repl(ctx context.Context, in io.Reader) int {
	sc := bufio.NewScanner(in)
	fmt.Fprint(s.stdout, ">>> ")
	for sc.Scan() {
		line := sc.Text()
		if line != "" {
			res, err := s.exec(ctx, line)
			switch {
			case errors.Is(err, context.Canceled):
				return 0
			case err != nil:
				fmt.Fprintf(s.stdout, "Exception: %v\n", err)
			default:
				fmt.Fprintln(s.stdout, display(res.Value))
			}
		}
		fmt.Fprint(s.stdout, ">>> ")
	}
	fmt.Fprintln(s.stdout)
	return 0
}

func isText(mt *mimetype.MIME) bool {
	return strings.HasPrefix(mt.String(), "text/") ||
		mt.Is("application/json") ||
		mt.Is("application/javascript")
}

func display(v any) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprint(v)
}
