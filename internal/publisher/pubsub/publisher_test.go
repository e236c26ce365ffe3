package pubsub_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	causaspubsub "github.com/JakeFAU/causas-crawler/internal/publisher/pubsub"
)

type result struct {
	NationalID string `json:"national_id"`
	Outcome    string `json:"outcome"`
}

func (r result) Attributes() map[string]string {
	return map[string]string{"outcome": r.Outcome}
}

func TestPublishDeliversJSONWithAttributes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	pub, err := causaspubsub.Open(ctx, causaspubsub.Config{ProjectID: "causas"}, nil, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	admin, err := pubsub.NewClient(ctx, "causas", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	topic, err := admin.CreateTopic(ctx, "litigant-results")
	require.NoError(t, err)
	_, err = admin.CreateSubscription(ctx, "results-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "litigant-results", result{NationalID: "1234", Outcome: "succeeded"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"national_id":"1234","outcome":"succeeded"}`, string(msgs[0].Data))
	assert.Equal(t, "succeeded", msgs[0].Attributes["outcome"])
}

func TestPublishValidatesInput(t *testing.T) {
	_, err := causaspubsub.Open(context.Background(), causaspubsub.Config{}, nil)
	require.Error(t, err)

	pub := causaspubsub.New(nil, nil)
	_, err = pub.Publish(context.Background(), "t", map[string]string{})
	require.Error(t, err)
}
