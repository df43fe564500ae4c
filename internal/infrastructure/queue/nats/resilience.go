package nats

import (
	"github.com/nats-io/nats.go"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/resilience"
)

var classifyNATSError = resilience.Matching(
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
)

func wrapTemporaryIfNeeded(err error) error {
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}
