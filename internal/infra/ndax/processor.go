package ndax

import (
	"context"
	"log/slog"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/infra"
)

// CommandSession is the part of *Session the processor drives.
type CommandSession interface {
	IsAuthenticated() bool
	Logout(ctx context.Context) error
	GetAccountPositions(ctx context.Context) error
	Close() error
}

// Processor turns strategy commands into exchange requests.
type Processor struct {
	session  CommandSession
	commands *event.Queue
	exec     domain.Execution
	logger   *slog.Logger
}

// NewProcessor creates a processor draining commands.
func NewProcessor(session CommandSession, commands *event.Queue, exec domain.Execution) *Processor {
	return &Processor{
		session:  session,
		commands: commands,
		exec:     exec,
		logger:   slog.Default().With("module", "ndax_processor"),
	}
}

// Run drains the command queue until a quit arrives.
// Cancelling ctx does not stop it.
func (p *Processor) Run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	defer p.commands.Abandon()
	p.logger.Info("Processor started")

	for {
		env, err := p.commands.Get(ctx)
		if err != nil {
			return err
		}

		switch env.Action {
		case event.ActionQuit:
			p.shutdown(ctx)
			p.logger.Info("Processor stopped")
			return nil

		case event.ActionOrder:
			cmd, ok := env.Payload.(domain.OrderCommand)
			if !ok {
				p.logger.Warn("Order command with unexpected payload", slog.String("envelope", env.String()))
				continue
			}
			if err := p.exec.Execute(ctx, cmd); err != nil {
				infra.GlobalMetrics.RecordError()
				p.logger.Error("Order failed",
					slog.Int64("client_order_id", cmd.ClientOrderID),
					slog.Any("error", err))
			}

		case event.ActionAcct:
			if err := p.session.GetAccountPositions(ctx); err != nil {
				infra.GlobalMetrics.RecordError()
				p.logger.Error("Account positions request failed", slog.Any("error", err))
			}

		default:
			p.logger.Warn("Unknown command", slog.String("envelope", env.String()))
		}
	}
}

// shutdown logs out when possible. Otherwise the session is closed so the
// dispatcher's pending read fails and the cascade still reaches persistence.
func (p *Processor) shutdown(ctx context.Context) {
	if p.session.IsAuthenticated() {
		err := p.session.Logout(ctx)
		if err == nil {
			return
		}
		p.logger.Error("Logout failed, closing session", slog.Any("error", err))
	}
	if err := p.session.Close(); err != nil {
		p.logger.Warn("Session close", slog.Any("error", err))
	}
}
