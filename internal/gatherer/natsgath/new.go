package natsgath

import (
	"log/slog"

	"github.com/nats-io/nats.go"
)

// New creates a NATS gatherer that streams events to the given inbox subject.
func New(nc *nats.Conn, evalUuid string, inbox string, logger *slog.Logger) *natsGatherer {
	return &natsGatherer{
		pub:      nc,
		inbox:    inbox,
		evalUuid: evalUuid,
		logger:   logger.With("eval_uuid", evalUuid),
	}
}
