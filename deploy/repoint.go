package deploy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
)

// Repointer updates the ECS service that fronts a task family. Neither
// operation waits for the rollout: the run is complete once the control
// plane acknowledges the request.
type Repointer struct {
	ecs     *ecs.Client
	cluster string
	service string
}

// NewRepointer creates a repointer for the environment's service.
func NewRepointer(clients *AWSClients, cfg Config) *Repointer {
	return &Repointer{
		ecs:     clients.ECS,
		cluster: cfg.ClusterName(),
		service: cfg.ServiceName(),
	}
}

// Pin points the service at a freshly registered revision. The update is
// always issued, even if the service already runs that revision.
func (r *Repointer) Pin(ctx context.Context, family string, revision int32) error {
	_, err := r.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:        aws.String(r.cluster),
		Service:        aws.String(r.service),
		TaskDefinition: aws.String(fmt.Sprintf("%s:%d", family, revision)),
	})
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrRepointFailed, r.cluster, r.service, err)
	}
	return nil
}

// ForceRedeploy asks the scheduler to roll the service's tasks under its
// current revision, re-pulling the image content behind a mutable tag.
func (r *Repointer) ForceRedeploy(ctx context.Context) error {
	_, err := r.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:            aws.String(r.cluster),
		Service:            aws.String(r.service),
		ForceNewDeployment: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrRepointFailed, r.cluster, r.service, err)
	}
	return nil
}
