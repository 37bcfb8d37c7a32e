package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	t.Run("should expose recorded collectors", func(t *testing.T) {
		RecordWorkflowRun(2*time.Second, true)
		RecordStepRun("skipped", 0)
		RecordModelCall("openai/gpt-4o-mini", 100*time.Millisecond, 10, 5, 0.001, true)
		RecordGuardrailDenial("file_write")
		RecordApproval("approved")

		rec := httptest.NewRecorder()
		MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		text := string(body)
		assert.Contains(t, text, "agentforge_workflow_runs_total")
		assert.Contains(t, text, `agentforge_model_tokens_total{direction="input",model="openai/gpt-4o-mini"}`)
		assert.Contains(t, text, `agentforge_guardrail_denials_total{tool="file_write"}`)
		assert.Contains(t, text, `agentforge_approvals_total{decision="approved"}`)
	})
}
