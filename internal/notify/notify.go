// Package notify publishes domain events for downstream collaborators
// such as the email sender. Delivery is best-effort: a broker failure is
// logged and never propagates into the business operation that raised
// the event.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/assaytrack/apiserver/internal/mq"
	"github.com/assaytrack/apiserver/types"
)

// Channels consumed by downstream workers.
const (
	ChannelReportIssued = "report.issued"
)

// ReportIssuedEvent is the payload published when a report is issued.
// The email worker turns it into a client notification.
type ReportIssuedEvent struct {
	ReportCode string    `json:"report_code"`
	SampleCode string    `json:"sample_code"`
	SampleID   int       `json:"sample_id"`
	Hash       string    `json:"hash"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Notifier publishes events to the configured broker. A nil broker turns
// every publish into a no-op.
type Notifier struct {
	broker *mq.MQ
	logger *slog.Logger
}

func New(broker *mq.MQ, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{broker: broker, logger: logger}
}

// ReportIssued publishes a report-issued event.
func (n *Notifier) ReportIssued(ctx context.Context, report types.Report, sampleCode string) {
	n.publish(ctx, ChannelReportIssued, ReportIssuedEvent{
		ReportCode: report.Code,
		SampleCode: sampleCode,
		SampleID:   report.SampleID,
		Hash:       report.Hash,
		IssuedAt:   report.IssuedAt,
	})
}

func (n *Notifier) publish(ctx context.Context, channel string, event any) {
	if n.broker == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to encode notification", "channel", channel, "error", err)
		return
	}
	if _, err := n.broker.Publish(ctx, channel, data, map[string]string{"event": channel}); err != nil {
		n.logger.Error("failed to publish notification", "channel", channel, "error", err)
	}
}
