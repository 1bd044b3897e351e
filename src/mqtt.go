package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/frame"
	"github.com/Robogera/kinematics/pkg/indexed"
	"github.com/Robogera/kinematics/pkg/synapse"

	mqtt "github.com/soypat/natiu-mqtt"
)

// publisher is the client side of the broker, a nil publisher only logs
type publisher interface {
	publish(payload []byte) error
	close(err error)
}

type mqttPublisher struct {
	client *mqtt.Client
	flags  mqtt.PacketFlags
	topic  []byte
}

func dialBroker(ctx context.Context, logger *slog.Logger, cfg *config.MqttConfig) (*mqttPublisher, error) {
	client := mqtt.NewClient(
		mqtt.ClientConfig{
			Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 2048)},
			OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
				message, err := io.ReadAll(r)
				if err != nil {
					return err
				}
				logger.Debug("Recieved", "header", pubHead.String(), "topic", string(varPub.TopicName), "message", message)
				return nil
			},
		})

	timeout := time.Second * time.Duration(max(1, cfg.TimeoutSec))
	dialer := net.Dialer{Timeout: timeout}
	connection, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ERR_BROKER, err)
	}

	connection_ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	vars := &mqtt.VariablesConnect{
		ClientID: []byte(cfg.ClientId),
	}
	if cfg.Username != "" {
		vars.Username = []byte(cfg.Username)
		vars.Password = []byte(cfg.Password)
	}
	if err := client.Connect(connection_ctx, connection, vars); err != nil {
		connection.Close()
		return nil, fmt.Errorf("%w: %w", ERR_BROKER, err)
	}

	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		client.Disconnect(err)
		return nil, err
	}
	return &mqttPublisher{client: client, flags: flags, topic: []byte(cfg.Topic)}, nil
}

func (p *mqttPublisher) publish(payload []byte) error {
	return p.client.PublishPayload(p.flags, mqtt.VariablesPublish{TopicName: p.topic}, payload)
}

// Disconnect wants a reason
func (p *mqttPublisher) close(err error) {
	if err == nil {
		err = ERR_STREAM_ENDED
	}
	p.client.Disconnect(err)
}

// mqttclient wraps every result into a synapse command and publishes it.
// Without a broker the results are only logged.
func mqttclient(
	ctx context.Context,
	parent_logger *slog.Logger,
	cfg *config.MqttConfig,
	subject string,
	in_chan <-chan indexed.Indexed[*frame.FrameResult],
) error {
	logger := parent_logger.With("coroutine", "mqttclient")

	var pub publisher
	if cfg.Enabled {
		p, err := dialBroker(ctx, logger, cfg)
		if err != nil {
			logger.Error("Can't connect to the broker", "address", cfg.Address, "error", err)
			return err
		}
		logger.Info("Connected to the broker", "address", cfg.Address, "topic", cfg.Topic)
		pub = p
		defer func() { pub.close(ctx.Err()) }()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Mqttclient cancelled by context")
			return context.Canceled
		case r, ok := <-in_chan:
			if !ok {
				return nil
			}
			result := r.Value()
			if pub == nil {
				logger.Debug("Frame analyzed",
					"frame", result.FrameId,
					"timestamp", result.Timestamp,
					"persons", len(result.Persons),
					"processing ms", result.ProcessingTimeMs)
				continue
			}
			payload, err := synapse.NewFrameCommand(r.Id(), cfg.ClientId, subject, result).ToPayload()
			if err != nil {
				logger.Error("Can't encode frame", "frame", r.Id(), "error", err)
				return err
			}
			if err := pub.publish(payload); err != nil {
				logger.Error("Can't publish frame", "frame", r.Id(), "error", err)
				return fmt.Errorf("%w: %w", ERR_BROKER, err)
			}
		}
	}
}
