package deploy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
)

// AWSClients holds the AWS clients used for a rotation. TaskDefs speaks
// the raw ECS wire protocol for the task-definition operations; the
// generated clients cover everything else.
type AWSClients struct {
	ECS      *ecs.Client
	ECR      *ecr.Client
	TaskDefs *TaskDefinitionClient
}

// NewAWSClients initializes AWS SDK clients from config. When
// endpointURL is set the clients are pointed at it with static test
// credentials, which is how the tests run against a local control plane.
func NewAWSClients(ctx context.Context, region string, endpointURL string) (*AWSClients, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if endpointURL != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if endpointURL != "" {
		return newClientsWithEndpoint(cfg, endpointURL), nil
	}
	return newClientsFromConfig(cfg), nil
}

func newClientsFromConfig(cfg aws.Config) *AWSClients {
	return &AWSClients{
		ECS:      ecs.NewFromConfig(cfg),
		ECR:      ecr.NewFromConfig(cfg),
		TaskDefs: NewTaskDefinitionClient(cfg, fmt.Sprintf("https://ecs.%s.amazonaws.com", cfg.Region)),
	}
}

func newClientsWithEndpoint(cfg aws.Config, endpoint string) *AWSClients {
	return &AWSClients{
		ECS:      ecs.NewFromConfig(cfg, func(o *ecs.Options) { o.BaseEndpoint = aws.String(endpoint) }),
		ECR:      ecr.NewFromConfig(cfg, func(o *ecr.Options) { o.BaseEndpoint = aws.String(endpoint) }),
		TaskDefs: NewTaskDefinitionClient(cfg, endpoint),
	}
}
