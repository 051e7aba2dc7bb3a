package app

import (
	"github.com/yungbote/debrief-backend/internal/clients/gcp"
	"github.com/yungbote/debrief-backend/internal/clients/redis"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
)

type Clients struct {
	Bucket   gcp.BucketService
	Speech   gcp.Speech
	EventBus redis.EventBus
}

// wireClients builds the external-provider clients. The event bus is
// optional; everything else is required for the pipeline to function.
func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return Clients{}, err
	}
	speech, err := gcp.NewSpeech(log)
	if err != nil {
		return Clients{}, err
	}
	bus, err := redis.NewEventBus(log)
	if err != nil {
		log.Warn("Redis event bus unavailable, notifications disabled", "error", err)
		bus = nil
	}

	return Clients{
		Bucket:   bucket,
		Speech:   speech,
		EventBus: bus,
	}, nil
}
