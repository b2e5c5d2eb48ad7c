package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"team-presence/pkg/common"
)

const (
	// MQTT Quality of Service levels
	QoSAtMostOnce  = 0
	QoSAtLeastOnce = 1
)

// MQTTOptions MQTT 发布器配置
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTTPublisher 把事件发布到 <prefix>/<matchID>/<type>
type MQTTPublisher struct {
	prefix string
	client mqtt.Client
	logger common.Logger
}

// NewMQTTPublisher 连接 MQTT broker
func NewMQTTPublisher(o MQTTOptions, logger common.Logger) (*MQTTPublisher, error) {
	clientID := o.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("team_presence_%d", time.Now().Unix())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(clientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("Connected to MQTT broker %s", o.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost: %v", err)
	})

	// Auto reconnect
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect: %w", token.Error())
	}

	return &MQTTPublisher{
		prefix: strings.TrimSuffix(o.TopicPrefix, "/"),
		client: client,
		logger: logger,
	}, nil
}

// Topic 返回事件对应的主题
func (p *MQTTPublisher) Topic(event Event) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, event.MatchID, event.Type)
}

// Publish 以 QoS 1 发布事件
func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt publisher not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := p.client.Publish(p.Topic(event), QoSAtLeastOnce, false, payload)
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish to %s timed out", p.Topic(event))
	}
	return token.Error()
}

// Ping 连接是否可用
func (p *MQTTPublisher) Ping(ctx context.Context) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt connection is down")
	}
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
