package research

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/hh-researcher/internal/logger"
	"go.uber.org/zap"
)

// Node is one step of the research loop. Process reads the state and writes
// its outcome back through the state's setters.
type Node interface {
	Name() string
	Process(ctx context.Context, s *State) error
}

// runNode executes node and logs its duration. cycle is the 1-based cycle the
// step belongs to; zero leaves it out of the log.
func runNode(ctx context.Context, log *zap.Logger, node Node, s *State, cycle int) error {
	started := time.Now()
	err := node.Process(ctx, s)
	log.Info("node step", append(logger.StepFields(node.Name(), cycle),
		zap.Duration("duration", time.Since(started)),
		zap.Bool("ok", err == nil),
	)...)
	if err != nil {
		return fmt.Errorf("%s: %w", node.Name(), err)
	}
	return nil
}
