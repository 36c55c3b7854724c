// Package awsclient builds the shared AWS SDK configuration and service clients.
package awsclient

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/theory-cloud/tabletheory"
	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	"github.com/theory-cloud/tabletheory/pkg/session"

	"github.com/theory-cloud/musicapi/pkg/config"
)

const defaultRegion = "us-east-1"

// Region resolves the region from cfg, then AWS_REGION and AWS_DEFAULT_REGION.
func Region(cfg config.AWSConfig) string {
	for _, candidate := range []string{cfg.Region, os.Getenv("AWS_REGION"), os.Getenv("AWS_DEFAULT_REGION")} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return defaultRegion
}

// LoadOptions are the SDK load options for cfg. Static credentials are used only together with
// an endpoint override, which is how LocalStack and DynamoDB Local are reached.
func LoadOptions(cfg config.AWSConfig) []func(*awsconfig.LoadOptions) error {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(Region(cfg))}
	if strings.TrimSpace(cfg.EndpointURL) == "" {
		return opts
	}
	key, secret := strings.TrimSpace(cfg.AccessKeyID), strings.TrimSpace(cfg.SecretAccessKey)
	if key == "" || secret == "" {
		key, secret = "test", "test"
	}
	opts = append(opts,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")),
		awsconfig.WithBaseEndpoint(strings.TrimSpace(cfg.EndpointURL)),
	)
	return opts
}

// Load resolves the SDK configuration.
func Load(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, LoadOptions(cfg)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("awsclient: load config: %w", err)
	}
	return awsCfg, nil
}

// Clients holds the service clients shared by the functions.
type Clients struct {
	Config         aws.Config
	SSM            *ssm.Client
	SecretsManager *secretsmanager.Client
	SNS            *sns.Client
	SES            *ses.Client
	EventBridge    *eventbridge.Client
	CloudWatch     *cloudwatch.Client
	DynamoDB       *dynamodb.Client
}

// New builds every client from one configuration. Clients are cheap until used.
func New(awsCfg aws.Config) *Clients {
	return &Clients{
		Config:         awsCfg,
		SSM:            ssm.NewFromConfig(awsCfg),
		SecretsManager: secretsmanager.NewFromConfig(awsCfg),
		SNS:            sns.NewFromConfig(awsCfg),
		SES:            ses.NewFromConfig(awsCfg),
		EventBridge:    eventbridge.NewFromConfig(awsCfg),
		CloudWatch:     cloudwatch.NewFromConfig(awsCfg),
		DynamoDB:       dynamodb.NewFromConfig(awsCfg),
	}
}

// TableTheory opens the TableTheory connection backing the DynamoDB rate-limit store.
func TableTheory(cfg config.AWSConfig) (tablecore.DB, error) {
	db, err := tabletheory.NewBasic(session.Config{
		Region:           Region(cfg),
		Endpoint:         strings.TrimSpace(cfg.EndpointURL),
		AWSConfigOptions: LoadOptions(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("awsclient: init tabletheory: %w", err)
	}
	return db, nil
}
