package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// testClients returns real SDK clients pointed at the fake.
func testClients(t *testing.T, f *fakeControlPlane) *AWSClients {
	t.Helper()
	clients, err := NewAWSClients(context.Background(), "us-east-2", f.URL())
	if err != nil {
		t.Fatalf("init AWS clients: %v", err)
	}
	return clients
}

// fakeControlPlane is an in-process stand-in for the ECS and ECR APIs.
// Both services speak AWS JSON 1.1: every call is a POST dispatched on
// the X-Amz-Target header, so one handler covers both clients when they
// are pointed at the server via BaseEndpoint.
type fakeControlPlane struct {
	srv *httptest.Server

	mu sync.Mutex

	// repositories maps repository name -> image details in wire form.
	repositories map[string][]map[string]any
	// taskDefs maps "family:revision" -> task definition in wire form.
	taskDefs  map[string]map[string]any
	revisions map[string]int
	// services maps service name -> last applied taskDefinition pointer.
	services map[string]string

	describeImagesCalls int
	describeTaskCalls   int
	registerCalls       int
	updateServiceCalls  int

	lastRegistered map[string]any
	lastUpdate     map[string]any

	failDescribeTaskDef bool
	failRegister        bool
	failUpdateService   bool
}

func newFakeControlPlane() *fakeControlPlane {
	f := &fakeControlPlane{
		repositories: make(map[string][]map[string]any),
		taskDefs:     make(map[string]map[string]any),
		revisions:    make(map[string]int),
		services:     make(map[string]string),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeControlPlane) Close() { f.srv.Close() }

func (f *fakeControlPlane) URL() string { return f.srv.URL }

func (f *fakeControlPlane) handle(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Amz-Target")

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		awsError(w, "InvalidParameterException", "invalid request body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch target {
	case "AmazonEC2ContainerRegistry_V20150921.DescribeRepositories":
		f.handleDescribeRepositories(w, body)
	case "AmazonEC2ContainerRegistry_V20150921.DescribeImages":
		f.handleDescribeImages(w, body)
	case "AmazonEC2ContainerServiceV20141113.DescribeTaskDefinition":
		f.handleDescribeTaskDefinition(w, body)
	case "AmazonEC2ContainerServiceV20141113.RegisterTaskDefinition":
		f.handleRegisterTaskDefinition(w, body)
	case "AmazonEC2ContainerServiceV20141113.UpdateService":
		f.handleUpdateService(w, body)
	default:
		awsError(w, "UnknownOperationException", "unknown operation: "+target)
	}
}

func (f *fakeControlPlane) handleDescribeRepositories(w http.ResponseWriter, body map[string]any) {
	names, _ := body["repositoryNames"].([]any)
	var repos []map[string]any
	for _, n := range names {
		name, _ := n.(string)
		if _, ok := f.repositories[name]; !ok {
			awsError(w, "RepositoryNotFoundException",
				"The repository with name '"+name+"' does not exist")
			return
		}
		repos = append(repos, map[string]any{
			"repositoryName": name,
			"repositoryArn":  "arn:aws:ecr:us-east-2:123456789012:repository/" + name,
			"repositoryUri":  "123456789012.dkr.ecr.us-east-2.amazonaws.com/" + name,
			"registryId":     "123456789012",
		})
	}
	writeJSON(w, map[string]any{"repositories": repos})
}

// describeImagesPageSize keeps every multi-image repository paginated
// so the locator's page loop is exercised.
const describeImagesPageSize = 2

func (f *fakeControlPlane) handleDescribeImages(w http.ResponseWriter, body map[string]any) {
	f.describeImagesCalls++
	name, _ := body["repositoryName"].(string)
	images, ok := f.repositories[name]
	if !ok {
		awsError(w, "RepositoryNotFoundException",
			"The repository with name '"+name+"' does not exist")
		return
	}

	start := 0
	if token, ok := body["nextToken"].(string); ok && token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := min(start+describeImagesPageSize, len(images))

	resp := map[string]any{"imageDetails": images[start:end]}
	if end < len(images) {
		resp["nextToken"] = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func (f *fakeControlPlane) handleDescribeTaskDefinition(w http.ResponseWriter, body map[string]any) {
	f.describeTaskCalls++
	if f.failDescribeTaskDef {
		awsError(w, "ClientException", "injected describe failure")
		return
	}
	family, _ := body["taskDefinition"].(string)
	rev, ok := f.revisions[family]
	if !ok {
		awsError(w, "ClientException", "Unable to describe task definition: "+family)
		return
	}
	td := f.taskDefs[fmt.Sprintf("%s:%d", family, rev)]
	writeJSON(w, map[string]any{"taskDefinition": td})
}

func (f *fakeControlPlane) handleRegisterTaskDefinition(w http.ResponseWriter, body map[string]any) {
	f.registerCalls++
	if f.failRegister {
		awsError(w, "ClientException", "injected register failure")
		return
	}
	family, _ := body["family"].(string)
	if family == "" {
		awsError(w, "InvalidParameterException", "Family is required")
		return
	}
	f.lastRegistered = body

	f.revisions[family]++
	rev := f.revisions[family]

	td := make(map[string]any, len(body)+5)
	for k, v := range body {
		td[k] = v
	}
	td["taskDefinitionArn"] = fmt.Sprintf(
		"arn:aws:ecs:us-east-2:123456789012:task-definition/%s:%d", family, rev)
	td["revision"] = rev
	td["status"] = "ACTIVE"
	td["registeredAt"] = 1700000000
	td["registeredBy"] = "arn:aws:iam::123456789012:user/ci"
	td["requiresAttributes"] = []map[string]any{
		{"name": "com.amazonaws.ecs.capability.docker-remote-api.1.18"},
	}
	td["compatibilities"] = []string{"EC2", "FARGATE"}

	f.taskDefs[fmt.Sprintf("%s:%d", family, rev)] = td
	writeJSON(w, map[string]any{"taskDefinition": td})
}

func (f *fakeControlPlane) handleUpdateService(w http.ResponseWriter, body map[string]any) {
	f.updateServiceCalls++
	if f.failUpdateService {
		awsError(w, "ServiceNotFoundException", "injected update failure")
		return
	}
	f.lastUpdate = body
	service, _ := body["service"].(string)
	if td, ok := body["taskDefinition"].(string); ok {
		f.services[service] = td
	}
	writeJSON(w, map[string]any{
		"service": map[string]any{
			"serviceName":    service,
			"taskDefinition": f.services[service],
			"status":         "ACTIVE",
		},
	})
}

// seedImage records an image push in wire form. pushedAt is epoch
// seconds; AWS JSON 1.1 timestamps are numbers on the wire.
func (f *fakeControlPlane) seedImage(repo string, tags []string, pushedAt int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	detail := map[string]any{
		"repositoryName": repo,
		"registryId":     "123456789012",
		"imageDigest":    fmt.Sprintf("sha256:%064d", pushedAt),
		"imagePushedAt":  pushedAt,
	}
	if len(tags) > 0 {
		detail["imageTags"] = tags
	}
	f.repositories[repo] = append(f.repositories[repo], detail)
}

// seedRepository creates an empty repository.
func (f *fakeControlPlane) seedRepository(repo string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.repositories[repo]; !ok {
		f.repositories[repo] = []map[string]any{}
	}
}

// seedTaskDefinition registers a task definition in wire form and
// returns its revision.
func (f *fakeControlPlane) seedTaskDefinition(family string, td map[string]any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revisions[family]++
	rev := f.revisions[family]
	stored := make(map[string]any, len(td)+3)
	for k, v := range td {
		stored[k] = v
	}
	stored["family"] = family
	stored["revision"] = rev
	stored["taskDefinitionArn"] = fmt.Sprintf(
		"arn:aws:ecs:us-east-2:123456789012:task-definition/%s:%d", family, rev)
	stored["status"] = "ACTIVE"
	f.taskDefs[fmt.Sprintf("%s:%d", family, rev)] = stored
	return rev
}

func (f *fakeControlPlane) counts() (describeImages, describeTask, register, update int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describeImagesCalls, f.describeTaskCalls, f.registerCalls, f.updateServiceCalls
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// awsError writes an AWS JSON 1.1 error. Client errors are not retried
// by the SDK, which keeps the call counters deterministic.
func awsError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{
		"__type":  code,
		"message": message,
	})
}
