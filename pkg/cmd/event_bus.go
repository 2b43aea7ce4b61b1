package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/approvio/approvio/pkg/channels/gochannel"
	"github.com/approvio/approvio/pkg/channels/kafka"
	"github.com/approvio/approvio/pkg/eventbus"
)

// NewEventBus creates an event bus instance based on the provider. "none"
// disables lifecycle event publishing.
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "approvio")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "none", "":
		return nil
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
