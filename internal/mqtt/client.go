package mqtt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"facebot-go/internal/config"
	"facebot-go/internal/core/models"
	"facebot-go/internal/core/pipeline"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client subscribes to the snapshot ingest topic, runs each image through the
// prediction pipeline and publishes the match result.
type Client struct {
	cfg    config.MQTTConfig
	svc    *pipeline.Service
	client mqtt.Client
}

// SnapshotMessage is the expected ingest payload.
type SnapshotMessage struct {
	Source string `json:"source"`
	Image  string `json:"image"` // base64-encoded JPEG
}

// MatchMessage is published for every processed snapshot.
type MatchMessage struct {
	Source    string                    `json:"source"`
	Faces     []pipeline.FacePrediction `json:"faces"`
	Caption   string                    `json:"caption"`
	Error     string                    `json:"error,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

func NewClient(cfg config.MQTTConfig, svc *pipeline.Service) *Client {
	return &Client{cfg: cfg, svc: svc}
}

// Start connects to the broker. With MQTT disabled in the configuration it is
// a no-op, so callers do not need to special-case it.
func (c *Client) Start() error {
	if !c.cfg.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.cfg.Broker, c.cfg.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.cfg.ClientID)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client")
		c.client.Disconnect(250)
	}
}

func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// onConnect re-subscribes on every (re)connection.
func (c *Client) onConnect(client mqtt.Client) {
	log.Info("MQTT client connected")
	token := client.Subscribe(c.cfg.IngestTopic, 0, c.handleSnapshot)
	if token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to %s: %v", c.cfg.IngestTopic, token.Error())
		return
	}
	log.Infof("Subscribed to MQTT topic %s", c.cfg.IngestTopic)
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	log.Warnf("MQTT connection lost: %v", err)
}

// handleSnapshot decodes an ingest payload, predicts and publishes the
// outcome. Failures are published too so downstream consumers see them.
func (c *Client) handleSnapshot(_ mqtt.Client, msg mqtt.Message) {
	var snapshot SnapshotMessage
	if err := json.Unmarshal(msg.Payload(), &snapshot); err != nil {
		log.Warnf("Ignoring malformed snapshot payload on %s: %v", msg.Topic(), err)
		return
	}
	if snapshot.Source == "" {
		snapshot.Source = models.SourceMQTT
	}

	imageData, err := base64.StdEncoding.DecodeString(snapshot.Image)
	if err != nil {
		log.Warnf("Ignoring snapshot with invalid base64 image: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	match := MatchMessage{Source: snapshot.Source, Timestamp: time.Now()}
	result, err := c.svc.Predict(ctx, imageData, snapshot.Source)
	if err != nil {
		log.WithError(err).Warn("MQTT snapshot prediction failed")
		match.Error = err.Error()
	} else {
		match.Faces = result.Faces
		match.Caption = result.Caption
	}

	c.publishMatch(match)
}

func (c *Client) publishMatch(match MatchMessage) {
	payload, err := json.Marshal(match)
	if err != nil {
		log.WithError(err).Error("Failed to marshal match message")
		return
	}
	token := c.client.Publish(c.cfg.ResultTopic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		log.Errorf("Failed to publish match to %s: %v", c.cfg.ResultTopic, token.Error())
	}
}
