package channel

import (
	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"go.uber.org/zap"
)

// Adapter delivers outbound content to a channel provider. It is injected
// into the engine so tests can run against a fake.
type Adapter interface {
	Send(msg model.OutboundMessage) error
}

var _ Adapter = new(loggingAdapter)

// loggingAdapter is the default adapter when no provider integration is
// wired; it only logs the outbound effect.
type loggingAdapter struct{}

func NewLoggingAdapter() *loggingAdapter {
	return &loggingAdapter{}
}

func (a *loggingAdapter) Send(msg model.OutboundMessage) error {
	logger.Info("outbound message",
		zap.String("conversation", msg.ConversationId),
		zap.String("channel", msg.ChannelId),
		zap.String("type", msg.Type),
		zap.String("content", msg.Content))
	return nil
}
