package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const bridgeBuffer = 256

type bridgeEnvelope struct {
	Instance string          `json:"instance"`
	Frame    json.RawMessage `json:"frame"`
}

// Bridge replicates hub frames across service instances through a redis
// channel. Local delivery stays synchronous; the redis leg runs on a
// background loop so publishing never blocks on the network. Frames arriving
// from other instances are re-delivered into the local hub; a bridge skips
// its own frames by instance id.
type Bridge struct {
	hub      *Hub
	rc       *redis.Client
	channel  string
	instance string
	logger   *log.Logger
	out      chan []byte
}

// NewBridge wraps the hub with cross-instance replication.
func NewBridge(hub *Hub, rc *redis.Client, channel string, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.New()
	}
	return &Bridge{
		hub:      hub,
		rc:       rc,
		channel:  channel,
		instance: uuid.NewString(),
		logger:   logger,
		out:      make(chan []byte, bridgeBuffer),
	}
}

// Publish delivers the event locally and queues it for other instances.
func (b *Bridge) Publish(topic string, payload any) {
	data, err := EncodeFrame(topic, payload)
	if err != nil {
		b.logger.WithError(err).WithField("topic", topic).Error("encode event frame")
		return
	}
	b.hub.Deliver(data)

	env, err := sonic.Marshal(bridgeEnvelope{Instance: b.instance, Frame: data})
	if err != nil {
		b.logger.WithError(err).Error("encode bridge envelope")
		return
	}
	select {
	case b.out <- env:
	default:
		b.logger.Warn("bridge buffer full, dropping frame for remote instances")
	}
}

// Run pumps outgoing frames to redis and re-delivers frames published by
// other instances until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	go b.publishLoop(ctx)

	for {
		sub := b.rc.Subscribe(ctx, b.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var env bridgeEnvelope
				if err := sonic.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.WithError(err).Error("unable to parse bridge envelope")
					continue
				}
				if env.Instance == b.instance {
					continue
				}
				b.hub.Deliver(env.Frame)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("bridge pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-b.out:
			if err := b.rc.Publish(ctx, b.channel, data).Err(); err != nil {
				b.logger.WithError(err).Error("bridge publish failed")
			}
		}
	}
}
