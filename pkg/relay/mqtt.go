package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSink publishes alerts to <topic>/<video_id>.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

func NewMQTTSink(broker, clientID, topic string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return &MQTTSink{client: client, topic: topic}, nil
}

func (s *MQTTSink) Name() string {
	return "mqtt"
}

func (s *MQTTSink) Send(ctx context.Context, key string, payload []byte) error {
	token := s.client.Publish(s.topic+"/"+key, 1, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return errors.New("mqtt publish timeout")
	}
	return token.Error()
}

func (s *MQTTSink) Close() error {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}
