package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
)

func TestRegistryGet(t *testing.T) {
	registry := NewDriverRegistry()
	registry.Register("mock", func() Driver { return NewMockDriver() })

	driver, err := registry.Get("mock")
	require.NoError(t, err)
	assert.NotNil(t, driver)

	_, err = registry.Get("missing")
	var notFound *DriverNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Name)
}

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	for _, name := range []string{"claude-cli", "mock"} {
		driver, err := DefaultRegistry.Get(name)
		require.NoError(t, err, name)
		assert.NotNil(t, driver, name)
	}
}

func TestMockDriverInvoke(t *testing.T) {
	driver := NewMockDriver()

	resp, err := driver.Invoke(context.Background(), Request{
		StageID:    string(models.StageCoordinator),
		PromptText: "analyze the engagement",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 1, driver.InvocationCount(string(models.StageCoordinator)))
}

func TestMockDriverFixturesValidate(t *testing.T) {
	driver := NewMockDriver()
	v := schema.DefaultValidator()
	ctx := context.Background()

	coordResp, err := driver.Invoke(ctx, Request{StageID: string(models.StageCoordinator)})
	require.NoError(t, err)
	coord, err := v.Coordinator(coordResp.Result)
	require.NoError(t, err)
	require.NotNil(t, coord.SubAgentResults.Reconciliation)
	require.NotNil(t, coord.SubAgentResults.QoE)
	require.NotNil(t, coord.SubAgentResults.NWC)
	assert.InDelta(t, 5264000, coord.SubAgentResults.QoE.NormalizedEBITDA, 1e-9)

	prepResp, err := driver.Invoke(ctx, Request{StageID: string(models.StageInterviewPrep)})
	require.NoError(t, err)
	prep, err := v.InterviewPrep(prepResp.Result)
	require.NoError(t, err)
	assert.Equal(t, 3, prep.InterviewPrepSummary.TotalQuestionsGenerated)

	reportResp, err := driver.Invoke(ctx, Request{StageID: string(models.StageReport)})
	require.NoError(t, err)
	report, err := v.Report(reportResp.Result)
	require.NoError(t, err)
	assert.InDelta(t, -715000, report.PriceAdjustments.TotalImpact, 1e-9)
}

func TestMockDriverUnknownStage(t *testing.T) {
	driver := NewMockDriver()

	resp, err := driver.Invoke(context.Background(), Request{StageID: "unknown_stage"})
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.Empty(t, resp.Result)
}

func TestMockDriverErrorInjection(t *testing.T) {
	driver := NewMockDriver()
	boom := errors.New("transport down")
	driver.SetError(string(models.StageReport), boom)

	_, err := driver.Invoke(context.Background(), Request{StageID: string(models.StageReport)})
	assert.ErrorIs(t, err, boom)
}

func TestMockDriverHonorsContext(t *testing.T) {
	driver := NewMockDriver()
	driver.SetDelay(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := driver.Invoke(ctx, Request{StageID: string(models.StageCoordinator)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCLIDriverConfigure(t *testing.T) {
	driver := NewCLIDriver()

	err := driver.Configure(map[string]any{
		"binary":      "claude-dev",
		"model":       "opus",
		"temperature": 0.5,
		"max_tokens":  2000,
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-dev", driver.binary)
	assert.Equal(t, "opus", driver.model)
	assert.InDelta(t, 0.5, driver.temperature, 1e-9)
	assert.Equal(t, 2000, driver.maxTokens)
}

func TestCLIDriverRequiresStageID(t *testing.T) {
	driver := NewCLIDriver()
	_, err := driver.Invoke(context.Background(), Request{PromptText: "hello"})
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"a": 1}`,
			want:    `{"a": 1}`,
		},
		{
			name:    "object wrapped in prose",
			content: "Here is the analysis:\n```json\n{\"a\": 1}\n```\nLet me know.",
			want:    `{"a": 1}`,
		},
		{
			name:    "no object",
			content: "I could not complete the analysis.",
			wantErr: true,
		},
		{
			name:    "malformed object",
			content: `{"a": }`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestResponseJSONShape(t *testing.T) {
	resp := Response{Success: true, Status: "success", Result: json.RawMessage(`{"x":1}`)}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"status":"success","result":{"x":1}}`, string(data))
}
