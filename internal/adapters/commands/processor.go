package commands

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"chemcore/internal/core"
	"chemcore/pkg/domain"
)

const maxLineBytes = 1 << 20

// Summary counts the outcome of a Run.
type Summary struct {
	Applied  int `json:"applied"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// Processor applies decoded command lines to one dispenser.
type Processor struct {
	dispenser   *core.Dispenser
	logger      *slog.Logger
	defaultUser core.UserHandle
}

// NewProcessor binds a processor to dispenser. A nil logger discards output.
func NewProcessor(dispenser *core.Dispenser, logger *slog.Logger, defaultUser core.UserHandle) (*Processor, error) {
	if dispenser == nil {
		return nil, errors.New("dispenser required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if defaultUser == "" {
		defaultUser = "operator"
	}
	return &Processor{dispenser: dispenser, logger: logger, defaultUser: defaultUser}, nil
}

// Apply executes one envelope.
func (p *Processor) Apply(ctx context.Context, env Envelope) error {
	user := core.UserHandle(env.User)
	if user == "" {
		user = p.defaultUser
	}
	if env.Op == OpCreateContainer {
		return p.createContainer(ctx, env.Container)
	}
	cmd, err := env.Command()
	if err != nil {
		return err
	}
	return p.dispenser.Handle(ctx, user, cmd)
}

func (p *Processor) createContainer(ctx context.Context, spec *ContainerSpec) error {
	if spec == nil {
		return errors.New("create_container requires a container")
	}
	container, err := spec.Container()
	if err != nil {
		return err
	}
	_, err = p.dispenser.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateContainer(container)
		return err
	})
	return err
}

// Run reads JSON lines from r until EOF or ctx is done. Failed and rejected
// commands are logged and counted; only cancellation stops the run early.
func (p *Processor) Run(ctx context.Context, r io.Reader) (Summary, error) {
	var summary Summary
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		env, err := Decode(line)
		if err != nil {
			summary.Failed++
			p.logger.Warn("skip malformed command", "line", lineNo, "error", err)
			continue
		}
		err = p.Apply(ctx, env)
		switch {
		case err == nil:
			summary.Applied++
		case core.IsRejected(err):
			summary.Rejected++
			p.logger.Debug("command rejected", "line", lineNo, "op", env.Op, "error", err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return summary, err
		default:
			summary.Failed++
			p.logger.Warn("command failed", "line", lineNo, "op", env.Op, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("read commands: %w", err)
	}
	return summary, nil
}
