package testkit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SNSPublishCall struct {
	TopicARN string
	Subject  string
	Message  string
}

// FakeSNSClient records Publish calls.
type FakeSNSClient struct {
	mu sync.Mutex

	Calls      []SNSPublishCall
	PublishErr error
	nextID     int
}

func NewFakeSNSClient() *FakeSNSClient {
	return &FakeSNSClient{nextID: 1}
}

func (f *FakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if params == nil {
		return nil, errors.New("testkit: publish input is nil")
	}
	topicARN := strings.TrimSpace(aws.ToString(params.TopicArn))
	if topicARN == "" {
		return nil, errors.New("testkit: topic arn is empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, SNSPublishCall{
		TopicARN: topicARN,
		Subject:  aws.ToString(params.Subject),
		Message:  aws.ToString(params.Message),
	})
	if f.PublishErr != nil {
		return nil, f.PublishErr
	}
	id := f.nextID
	f.nextID++
	return &sns.PublishOutput{MessageId: aws.String("msg-" + strconv.Itoa(id))}, nil
}

func (f *FakeSNSClient) Published() []SNSPublishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SNSPublishCall(nil), f.Calls...)
}

type SESSendCall struct {
	Source  string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// FakeSESClient records SendEmail calls.
type FakeSESClient struct {
	mu      sync.Mutex
	Calls   []SESSendCall
	SendErr error
}

func NewFakeSESClient() *FakeSESClient {
	return &FakeSESClient{}
}

func (f *FakeSESClient) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if params == nil || params.Destination == nil || params.Message == nil {
		return nil, errors.New("testkit: send email input is incomplete")
	}
	call := SESSendCall{
		Source: aws.ToString(params.Source),
		To:     append([]string(nil), params.Destination.ToAddresses...),
	}
	if params.Message.Subject != nil {
		call.Subject = aws.ToString(params.Message.Subject.Data)
	}
	if body := params.Message.Body; body != nil {
		if body.Text != nil {
			call.Text = aws.ToString(body.Text.Data)
		}
		if body.Html != nil {
			call.HTML = aws.ToString(body.Html.Data)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	return &ses.SendEmailOutput{MessageId: aws.String("email-" + strconv.Itoa(len(f.Calls)))}, nil
}

func (f *FakeSESClient) Sent() []SESSendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SESSendCall(nil), f.Calls...)
}

type PutRuleCall struct {
	Name               string
	ScheduleExpression string
}

// FakeEventBridgeClient records PutRule calls.
type FakeEventBridgeClient struct {
	mu     sync.Mutex
	Calls  []PutRuleCall
	PutErr error
}

func NewFakeEventBridgeClient() *FakeEventBridgeClient {
	return &FakeEventBridgeClient{}
}

func (f *FakeEventBridgeClient) PutRule(_ context.Context, params *eventbridge.PutRuleInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error) {
	if params == nil {
		return nil, errors.New("testkit: put rule input is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, PutRuleCall{
		Name:               aws.ToString(params.Name),
		ScheduleExpression: aws.ToString(params.ScheduleExpression),
	})
	if f.PutErr != nil {
		return nil, f.PutErr
	}
	return &eventbridge.PutRuleOutput{
		RuleArn: aws.String("arn:aws:events:us-east-1:000000000000:rule/" + aws.ToString(params.Name)),
	}, nil
}

func (f *FakeEventBridgeClient) Rules() []PutRuleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PutRuleCall(nil), f.Calls...)
}
