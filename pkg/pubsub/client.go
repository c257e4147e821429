package pubsub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// ErrUnknownTopic is returned when publishing to a topic the client was not
// configured with. Retrying cannot fix it.
var ErrUnknownTopic = errors.New("pubsub topic not configured")

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("at least one pubsub topic is required")
	errClosed            = errors.New("pubsub client not initialized")
)

// Client publishes fulfillment events. Publishers are created lazily per
// topic and flushed on Close.
type Client struct {
	ps      *pubsub.Client
	project string
	topics  []string
	ordered bool

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails fast when a configured topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	ps, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := wrap(ps, project, cfg)
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":  c.topics,
			"ordered": c.ordered,
		}), "pubsub client initialized")
	}
	return c, nil
}

func wrap(ps *pubsub.Client, project string, cfg config.PubSubConfig) *Client {
	c := &Client{ps: ps, project: project, ordered: cfg.OrderedDelivery, publishers: map[string]*pubsub.Publisher{}}
	for _, name := range topicNames(cfg) {
		c.topics = append(c.topics, c.topicResourceName(name))
	}
	return c
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if inline := strings.TrimSpace(gcp.CredentialsJSON); inline != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(inline))}
	}
	if file := strings.TrimSpace(gcp.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.OrdersTopic, cfg.InventoryTopic, cfg.NotificationTopic, cfg.BillingTopic} {
		name = strings.TrimSpace(name)
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// Publish sends msg to topic and waits for the server id. With ordered
// delivery a failed key is resumed so later events for the same aggregate
// are not stuck behind the error.
func (c *Client) Publish(ctx context.Context, topic string, msg *pubsub.Message) (string, error) {
	if c == nil || c.ps == nil {
		return "", errClosed
	}
	name := c.topicResourceName(topic)
	if name == "" || !slices.Contains(c.topics, name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if !c.ordered {
		msg.OrderingKey = ""
	}

	pub := c.publisher(name)
	id, err := pub.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		pub.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

func (c *Client) publisher(name string) *pubsub.Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[name]; ok {
		return pub
	}
	pub := c.ps.Publisher(name)
	pub.EnableMessageOrdering = c.ordered
	c.publishers[name] = pub
	return pub
}

// Ping checks every configured topic concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errClosed
	}
	if len(c.topics) == 0 {
		return errNoTopics
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for _, name := range c.topics {
		group.Go(func() error {
			_, err := c.ps.TopicAdminClient.GetTopic(groupCtx, &pubsubpb.GetTopicRequest{Topic: name})
			switch {
			case err == nil:
				return nil
			case status.Code(err) == codes.NotFound:
				return fmt.Errorf("topic %s does not exist", name)
			default:
				return fmt.Errorf("checking topic %s: %w", name, err)
			}
		})
	}
	return group.Wait()
}

// Close flushes pending publishes before releasing the connection.
func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.ps.Close()
}

func (c *Client) topicResourceName(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case c == nil || c.project == "":
		return ""
	default:
		return "projects/" + c.project + "/topics/" + name
	}
}
