// Package pubsub wraps the Pub/Sub v2 client for the payout topics.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client owns one Pub/Sub connection. Publisher handles are cached per topic
// because each one runs its own batching goroutines.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and fails fast when the payouts subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.PayoutsSubscription) == "" {
		return nil, errors.New("pubsub payouts subscription is required")
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  projectID,
		cfg:        cfg,
		publishers: make(map[string]*pubsub.Publisher),
	}
	if err := c.checkSubscription(ctx, cfg.PayoutsSubscription); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) checkSubscription(ctx context.Context, name string) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: resourceName(c.projectID, kindSubscription, name),
	})
	return describeLookup(kindSubscription, name, err)
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: resourceName(c.projectID, kindTopic, name),
	})
	return describeLookup(kindTopic, name, err)
}

func describeLookup(kind resourceKind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", strings.TrimSuffix(string(kind), "s"), name)
	default:
		return fmt.Errorf("checking pubsub %s %q: %w", strings.TrimSuffix(string(kind), "s"), name, err)
	}
}

// PayoutsSubscription is where the settlement worker pulls payout.requested.
func (c *Client) PayoutsSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Subscriber(resourceName(c.projectID, kindSubscription, c.cfg.PayoutsSubscription))
}

// Publisher returns the cached handle for topic (ID or full resource name).
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindTopic, topic)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[full]; ok {
		return p
	}
	p := c.client.Publisher(full)
	c.publishers[full] = p
	return p
}

// Ping checks the payouts subscription and both outbound topics.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	err := c.checkSubscription(ctx, c.cfg.PayoutsSubscription)
	for _, topic := range []string{c.cfg.PayoutsTopic, c.cfg.DomainTopic} {
		if strings.TrimSpace(topic) == "" {
			continue
		}
		err = multierr.Append(err, c.checkTopic(ctx, topic))
	}
	return err
}

// Close flushes cached publishers before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a short ID into projects/<p>/<kind>/<id>. Names that
// are already fully qualified pass through.
func resourceName(projectID string, kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, kind, n)
}
