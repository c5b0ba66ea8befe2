package deploy

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// ImageLocator resolves the image reference to deploy from ECR.
type ImageLocator struct {
	ecr *ecr.Client
}

// NewImageLocator creates a locator backed by the given ECR client.
func NewImageLocator(clients *AWSClients) *ImageLocator {
	return &ImageLocator{ecr: clients.ECR}
}

// Locate returns the fully qualified reference of the most recently
// pushed tagged image in the repository. Untagged digests cannot be
// referenced by a task definition, so they are skipped.
func (l *ImageLocator) Locate(ctx context.Context, repository string) (string, error) {
	repos, err := l.ecr.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{repository},
	})
	if err != nil {
		return "", fmt.Errorf("describe repository %q: %w", repository, err)
	}
	if len(repos.Repositories) == 0 {
		return "", fmt.Errorf("%w: repository %q does not exist", ErrNoImageFound, repository)
	}
	uri := aws.ToString(repos.Repositories[0].RepositoryUri)

	var tagged []ecrtypes.ImageDetail
	paginator := ecr.NewDescribeImagesPaginator(l.ecr, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repository),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("describe images in %q: %w", repository, err)
		}
		for _, detail := range page.ImageDetails {
			if len(detail.ImageTags) > 0 {
				tagged = append(tagged, detail)
			}
		}
	}
	if len(tagged) == 0 {
		return "", fmt.Errorf("%w: repository %q", ErrNoImageFound, repository)
	}

	sort.Slice(tagged, func(i, j int) bool {
		return aws.ToTime(tagged[i].ImagePushedAt).Before(aws.ToTime(tagged[j].ImagePushedAt))
	})
	newest := tagged[len(tagged)-1]

	return fmt.Sprintf("%s:%s", uri, newest.ImageTags[0]), nil
}
