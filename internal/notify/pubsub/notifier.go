// Package pubsub publishes run reports to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// Notifier wraps a Pub/Sub topic.
type Notifier struct {
	topic *pubsub.Topic
}

// New creates a Notifier for topic.
func New(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

// Publish marshals report to JSON and waits for the server to acknowledge it.
func (n *Notifier) Publish(ctx context.Context, report vacancy.RunReport) (string, error) {
	if n == nil || n.topic == nil {
		return "", errors.New("pubsub topic is not configured")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal run report: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": report.RunID,
			"status": string(report.Status),
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish run report: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (n *Notifier) Stop() {
	if n != nil && n.topic != nil {
		n.topic.Stop()
	}
}
