package transfer

import (
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// LoggingCallback logs the progress of one transfer. Updates are logged only when
// the minimum interval has elapsed and the integer percentage changed since the
// last logged line. Completion and failure are always logged.
//
// A LoggingCallback holds per-transfer state, create a new one for every transfer.
type LoggingCallback struct {
	logger   log.Logger
	name     string
	interval time.Duration
	now      func() time.Time

	lastPercent int
	lastLogged  time.Time
}

// NewLoggingCallback ...
func NewLoggingCallback(logger log.Logger, name string, interval time.Duration) (*LoggingCallback, error) {
	if interval < 0 {
		return nil, fmt.Errorf("progress log interval must not be negative, got %s", interval)
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &LoggingCallback{
		logger:      logger,
		name:        name,
		interval:    interval,
		now:         time.Now,
		lastPercent: -1,
	}, nil
}

func (l *LoggingCallback) OnUpdate(current, total int64) { //nolint:revive
	percent := 100
	if total > 0 {
		percent = int(current * 100 / total)
	}
	if percent == l.lastPercent {
		return
	}
	now := l.now()
	if !l.lastLogged.IsZero() && now.Sub(l.lastLogged) < l.interval {
		return
	}

	l.lastPercent = percent
	l.lastLogged = now
	l.logger.Printf("%s: %d%% (%s / %s)", l.name, percent, units.HumanSize(float64(current)), units.HumanSize(float64(total)))
}

func (l *LoggingCallback) OnComplete(transferred int64) { //nolint:revive
	l.logger.Donef("%s: transferred %s", l.name, units.HumanSizeWithPrecision(float64(transferred), 3))
}

func (l *LoggingCallback) OnFailure(err error) { //nolint:revive
	l.logger.Errorf("%s: transfer failed: %s", l.name, err)
}

// withProgressLog puts a LoggingCallback named name in front of the caller's callback.
func withProgressLog(callback Callback, name string, interval time.Duration, logger log.Logger) *Chain {
	progress, err := NewLoggingCallback(logger, name, interval)
	if err != nil {
		logger.Warnf("Progress logging disabled for %s: %s", name, err)
		return asChain(callback, logger)
	}
	return NewChain(logger, progress, callback)
}
