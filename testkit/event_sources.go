package testkit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/musicapi/pkg/edge"
)

type SNSMessageOptions struct {
	MessageID string
	TopicARN  string
	Subject   string
	Message   string
}

// SNSEvent builds an SNS event with one record per message.
func SNSEvent(messages ...SNSMessageOptions) events.SNSEvent {
	out := events.SNSEvent{Records: make([]events.SNSEventRecord, 0, len(messages))}
	for _, msg := range messages {
		id := strings.TrimSpace(msg.MessageID)
		if id == "" {
			id = fmt.Sprintf("sns-%d", len(out.Records)+1)
		}
		topic := strings.TrimSpace(msg.TopicARN)
		if topic == "" {
			topic = "arn:aws:sns:us-east-1:000000000000:token-refresh"
		}
		out.Records = append(out.Records, events.SNSEventRecord{
			EventVersion:         "1.0",
			EventSource:          "aws:sns",
			EventSubscriptionArn: topic + ":sub-1",
			SNS: events.SNSEntity{
				MessageID: id,
				Type:      "Notification",
				TopicArn:  topic,
				Subject:   msg.Subject,
				Message:   msg.Message,
				Timestamp: time.Unix(0, 0).UTC(),
			},
		})
	}
	return out
}

type EventBridgeEventOptions struct {
	ID         string
	Source     string
	DetailType string
	Resources  []string
	Detail     any
	Time       time.Time
}

// EventBridgeEvent builds an EventBridge event; Detail is JSON-encoded.
func EventBridgeEvent(opts EventBridgeEventOptions) events.EventBridgeEvent {
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = "evt-1"
	}
	source := strings.TrimSpace(opts.Source)
	if source == "" {
		source = "aws.events"
	}
	detailType := strings.TrimSpace(opts.DetailType)
	if detailType == "" {
		detailType = "Scheduled Event"
	}
	eventTime := opts.Time
	if eventTime.IsZero() {
		eventTime = time.Unix(0, 0).UTC()
	}

	detail := json.RawMessage("null")
	if opts.Detail != nil {
		if b, err := json.Marshal(opts.Detail); err == nil {
			detail = b
		}
	}

	return events.EventBridgeEvent{
		Version:    "0",
		ID:         id,
		DetailType: detailType,
		Source:     source,
		AccountID:  "000000000000",
		Time:       eventTime,
		Region:     "us-east-1",
		Resources:  append([]string(nil), opts.Resources...),
		Detail:     detail,
	}
}

// ParameterChangeEvent is the SSM "Parameter Store Change" notification for name.
func ParameterChangeEvent(name string) events.EventBridgeEvent {
	return EventBridgeEvent(EventBridgeEventOptions{
		Source:     "aws.ssm",
		DetailType: "Parameter Store Change",
		Resources:  []string{"arn:aws:ssm:us-east-1:000000000000:parameter" + name},
		Detail: map[string]string{
			"name":      name,
			"type":      "String",
			"operation": "Update",
		},
	})
}

// CloudFrontViewerRequest builds a viewer-request event for uri.
func CloudFrontViewerRequest(uri string) edge.ViewerRequestEvent {
	record := edge.Record{}
	record.CF.Config = edge.Config{DistributionID: "EDFDVBD6EXAMPLE", EventType: "viewer-request"}
	record.CF.Request = edge.Request{
		ClientIP: "203.0.113.178",
		Method:   "GET",
		URI:      uri,
		Headers: map[string][]edge.Header{
			"host": {{Key: "Host", Value: "music.mariolopez.org"}},
		},
	}
	return edge.ViewerRequestEvent{Records: []edge.Record{record}}
}
