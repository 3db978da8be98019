// Package awsclient builds the AWS SDK clients used by stacksync.
package awsclient

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/codex-k8s/stacksync/internal/config"
)

// sessionName identifies stacksync in CloudTrail when a role is assumed.
const sessionName = "stacksync"

// Clients bundles the service clients built from one aws.Config.
type Clients struct {
	Config         aws.Config
	CloudFormation *cloudformation.Client
	S3             *s3.Client
	STS            *sts.Client
}

// Load resolves credentials and region for settings and constructs the clients.
//
// A custom endpoint switches S3 to path-style addressing. When an endpoint is
// set and neither a profile nor AWS_ACCESS_KEY_ID is available, dummy static
// credentials are used, which is what local emulators expect.
func Load(ctx context.Context, settings config.AWSConfig) (*Clients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if settings.Region != "" {
		opts = append(opts, awsconfig.WithRegion(settings.Region))
	}
	if settings.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(settings.Profile))
	}
	endpoint := strings.TrimSpace(settings.Endpoint)
	if endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(endpoint))
		if settings.Profile == "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("test", "test", ""),
			))
		}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("AWS region is not set; configure aws.region, --region or AWS_REGION")
	}

	if settings.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), settings.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = sessionName
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return &Clients{
		Config:         cfg,
		CloudFormation: cloudformation.NewFromConfig(cfg),
		S3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			if endpoint != "" {
				o.UsePathStyle = true
			}
		}),
		STS: sts.NewFromConfig(cfg),
	}, nil
}
