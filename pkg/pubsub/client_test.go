package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/settlement-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "proj"}

	assert.Equal(t, "projects/proj/topics/orders", c.topicResourceName(" orders "))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Empty(t, c.topicResourceName("  "))
	assert.Empty(t, (&Client{}).topicResourceName("orders"))
}

func TestTopicNamesSkipBlanks(t *testing.T) {
	cfg := config.PubSubConfig{OrdersTopic: "orders", PayoutsTopic: " ", NotificationTopic: "notify"}
	assert.Equal(t, []string{"orders", "notify"}, topicNames(cfg))
	assert.Empty(t, topicNames(config.PubSubConfig{}))
}

func TestPingReportsEveryMissingTopic(t *testing.T) {
	var checked []string
	c := &Client{
		projectID: "proj",
		topics:    []string{"orders", "payouts", "notify"},
		lookup: func(_ context.Context, fullName string) error {
			checked = append(checked, fullName)
			switch fullName {
			case "projects/proj/topics/payouts":
				return status.Error(codes.NotFound, "no topic")
			case "projects/proj/topics/notify":
				return status.Error(codes.PermissionDenied, "denied")
			}
			return nil
		},
	}

	err := c.Ping(context.Background())
	assert.Len(t, checked, 3, "one missing topic does not hide the rest")
	assert.ErrorContains(t, err, `topic "payouts" does not exist`)
	assert.ErrorContains(t, err, `checking topic "notify"`)
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.Nil(t, c.Publisher("orders"))
	assert.NoError(t, c.Close())
}
