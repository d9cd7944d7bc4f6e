package natsgath

import (
	"encoding/json"
)

func (s *natsGatherer) send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal message", "error", err)
		return
	}

	if err := s.pub.Publish(s.inbox, b); err != nil {
		s.logger.Error("failed to publish message to NATS", "error", err, "subject", s.inbox)
	}
}
