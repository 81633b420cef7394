// ABOUTME: MQTT transport: subscribes to a topic and ingests each message body.
// ABOUTME: Subscriptions are re-established on every (re)connect.
package mqtt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/logger"
	"github.com/harperreed/health-ingest/internal/models"
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// Spooler keeps message bodies that could not be stored for a later replay.
type Spooler interface {
	Put(body []byte) (string, error)
}

type Subscriber struct {
	cfg      Config
	ingester ingest.Ingester
	log      *logger.Logger
	spool    Spooler

	mu  sync.Mutex
	ctx context.Context
}

func New(cfg Config, ingester ingest.Ingester, log *logger.Logger) *Subscriber {
	if log == nil {
		log = logger.NewNop()
	}
	return &Subscriber{
		cfg:      cfg,
		ingester: ingester,
		log:      log.With("component", "mqtt", "topic", cfg.Topic),
		ctx:      context.Background(),
	}
}

// WithSpool keeps the bodies of messages that hit a storage fault in sp.
func (s *Subscriber) WithSpool(sp Spooler) *Subscriber {
	s.spool = sp
	return s
}

func (s *Subscriber) options() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("health-ingest-%d", time.Now().Unix())
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(false)
	opts.OnConnect = func(c paho.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Error("subscribe failed", "error", err)
			return
		}
		s.log.Info("subscribed", "broker", s.cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.log.Warn("connection lost", "error", err)
	}
	return opts
}

// Run connects and consumes messages until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.cfg.Broker == "" || s.cfg.Topic == "" {
		return errors.New("mqtt broker and topic are required")
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	client := paho.NewClient(s.options())
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect mqtt %s: %w", s.cfg.Broker, token.Error())
	}

	<-ctx.Done()
	client.Disconnect(250)
	s.log.Info("disconnected")
	return nil
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	_, _ = s.Handle(ctx, msg)
}

// Handle decodes and ingests one message. Failures are logged and returned.
func (s *Subscriber) Handle(ctx context.Context, msg paho.Message) (*ingest.Result, error) {
	log := s.log.With("message_id", msg.MessageID(), "message_topic", msg.Topic())

	payload, err := models.DecodePayload(bytes.NewReader(msg.Payload()))
	if err != nil {
		log.Warn("message rejected", "bytes", len(msg.Payload()), "error", err)
		return nil, err
	}

	res, err := s.ingester.Ingest(ctx, payload)
	if err != nil {
		log.Error("message not stored", "error", err, "retryable", ingest.IsRetryable(err))
		if s.spool != nil && errors.Is(err, ingest.ErrStorageFault) {
			if key, spoolErr := s.spool.Put(msg.Payload()); spoolErr != nil {
				log.Error("spool failed", "error", spoolErr)
			} else {
				log.Info("message spooled", "key", key)
			}
		}
		return nil, err
	}
	log.Info("message stored",
		"payload_id", res.PayloadID,
		"status", res.Status,
		"metrics_processed", res.MetricsProcessed,
		"metrics_skipped", res.MetricsSkipped,
	)
	return res, nil
}
