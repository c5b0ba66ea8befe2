package deploy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// TaskDocument is a task definition in its AWS JSON 1.1 wire form.
// Working on the wire document instead of a fixed record lets fields
// this tool does not know about survive the mutate-and-reregister
// round trip untouched.
type TaskDocument map[string]any

// serverAssignedFields are owned by the control plane. They are stripped
// from a candidate before registration; RegisterTaskDefinition rejects
// or ignores them, and recomputing them here would tie the tool to one
// control-plane schema version.
var serverAssignedFields = []string{
	"taskDefinitionArn",
	"revision",
	"status",
	"requiresAttributes",
	"compatibilities",
	"registeredAt",
	"registeredBy",
}

const (
	describeTaskDefinitionTarget = "AmazonEC2ContainerServiceV20141113.DescribeTaskDefinition"
	registerTaskDefinitionTarget = "AmazonEC2ContainerServiceV20141113.RegisterTaskDefinition"
)

// TaskDefinitionClient calls the two task-definition operations as
// signed raw JSON requests rather than through the generated client.
// The generated types would silently drop any field the pinned SDK
// version does not model, which breaks the pass-through contract.
type TaskDefinitionClient struct {
	cfg      aws.Config
	endpoint string
	signer   *v4.Signer
}

// NewTaskDefinitionClient creates a wire-level client against the given
// ECS endpoint.
func NewTaskDefinitionClient(cfg aws.Config, endpoint string) *TaskDefinitionClient {
	return &TaskDefinitionClient{
		cfg:      cfg,
		endpoint: endpoint,
		signer:   v4.NewSigner(),
	}
}

// FetchTaskDocument reads the latest registered task definition for the
// family. It is called exactly once per run; a failure aborts the run
// before anything is written.
func (c *TaskDefinitionClient) FetchTaskDocument(ctx context.Context, family string) (TaskDocument, error) {
	out, err := c.call(ctx, describeTaskDefinitionTarget, map[string]any{
		"taskDefinition": family,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: family %q: %w", ErrSpecificationFetch, family, err)
	}
	doc, ok := out["taskDefinition"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: family %q: empty response", ErrSpecificationFetch, family)
	}
	return TaskDocument(doc), nil
}

// call issues one AWS JSON 1.1 request: POST /, X-Amz-Target selecting
// the operation, SigV4 over the exact payload. No retries; every
// failure is terminal for the run.
func (c *TaskDefinitionClient) call(ctx context.Context, target string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", target, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", target)

	creds, err := c.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]),
		"ecs", c.cfg.Region, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	client := c.cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Code == "" {
			return nil, fmt.Errorf("%s: HTTP %d", target, resp.StatusCode)
		}
		return nil, &apiErr
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", target, err)
	}
	return out, nil
}

// apiError is an AWS JSON 1.1 error body.
type apiError struct {
	Code    string `json:"__type"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	code := e.Code
	if i := strings.Index(code, "#"); i >= 0 {
		code = code[i+1:]
	}
	if e.Message == "" {
		return code
	}
	return code + ": " + e.Message
}

// NewCandidate returns a copy of doc with the primary container's image
// replaced and every server-assigned field removed. The input document
// is never modified. Only the first container definition is rewritten;
// any additional containers are left as-is.
func NewCandidate(doc TaskDocument, imageRef string) (TaskDocument, error) {
	candidate, err := cloneDocument(doc)
	if err != nil {
		return nil, err
	}

	containers, ok := candidate["containerDefinitions"].([]any)
	if !ok || len(containers) == 0 {
		return nil, fmt.Errorf("task document has no container definitions")
	}
	primary, ok := containers[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("task document has a malformed primary container definition")
	}
	primary["image"] = imageRef

	for _, field := range serverAssignedFields {
		delete(candidate, field)
	}
	return candidate, nil
}

func cloneDocument(doc TaskDocument) (TaskDocument, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("clone task document: %w", err)
	}
	var out TaskDocument
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone task document: %w", err)
	}
	return out, nil
}
