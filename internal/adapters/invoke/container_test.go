package invoke

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

type fakeRuntime struct {
	spec    runSpec
	result  runResult
	managed int
}

func (f *fakeRuntime) Run(_ context.Context, spec runSpec) (runResult, error) {
	f.spec = spec
	return f.result, nil
}

func (f *fakeRuntime) RemoveManaged(context.Context) (int, error) {
	n := f.managed
	f.managed = 0
	return n, nil
}

func envValue(env []string, key string) string {
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, key+"="); ok {
			return v
		}
	}
	return ""
}

func TestContainer_Invoke(t *testing.T) {
	rt := &fakeRuntime{result: runResult{Stdout: "  a summary\n"}}
	c := &Container{logger: testLogger(), runtime: rt, defaultImage: "ghcr.io/aule/llamacpp:latest"}

	out, err := c.Invoke(context.Background(), domain.Invocation{
		Model: domain.ModelDescriptor{
			ID:        "tinyllama",
			Resources: domain.ResourceRequirement{Memory: 2, Compute: 1.5},
		},
		Prompt: "summarize this",
		Params: domain.ExecutionParameters{Temperature: 0.5, MaxTokens: 512},
	})
	require.NoError(t, err)
	assert.Equal(t, "a summary", out.Text)

	spec := rt.spec
	assert.Equal(t, "ghcr.io/aule/llamacpp:latest", spec.Image)
	assert.True(t, strings.HasPrefix(spec.Name, containerNamePrefix))
	assert.Equal(t, int64(2*gib), spec.Memory)
	assert.Equal(t, int64(1_500_000_000), spec.NanoCPUs)
	assert.Equal(t, "tinyllama", envValue(spec.Env, "AULE_MODEL"))
	assert.Equal(t, "summarize this", envValue(spec.Env, "AULE_PROMPT"))

	var params domain.ExecutionParameters
	require.NoError(t, json.Unmarshal([]byte(envValue(spec.Env, "AULE_PARAMS")), &params))
	assert.Equal(t, 512, params.MaxTokens)
}

func TestContainer_ModelImageOverridesDefault(t *testing.T) {
	rt := &fakeRuntime{}
	c := &Container{logger: testLogger(), runtime: rt, defaultImage: "default"}

	_, err := c.Invoke(context.Background(), domain.Invocation{Model: domain.ModelDescriptor{ID: "m", Endpoint: "custom:1"}})
	require.NoError(t, err)
	assert.Equal(t, "custom:1", rt.spec.Image)
}

func TestContainer_NonZeroExit(t *testing.T) {
	rt := &fakeRuntime{result: runResult{ExitCode: 137, Stderr: "killed: out of memory"}}
	c := &Container{logger: testLogger(), runtime: rt, defaultImage: "img"}

	_, err := c.Invoke(context.Background(), domain.Invocation{Model: domain.ModelDescriptor{ID: "m"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "137")
	assert.Contains(t, err.Error(), "out of memory")
}

func TestContainer_NoImage(t *testing.T) {
	c := &Container{logger: testLogger(), runtime: &fakeRuntime{}}
	_, err := c.Invoke(context.Background(), domain.Invocation{Model: domain.ModelDescriptor{ID: "m"}})
	assert.Error(t, err)
}

func TestContainer_Reap(t *testing.T) {
	rt := &fakeRuntime{managed: 3}
	c := &Container{logger: testLogger(), runtime: rt}

	n, err := c.Reap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.Reap(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
