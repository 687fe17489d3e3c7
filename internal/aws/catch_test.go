package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
)

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &line))
	return line
}

func TestCatch_LogLevels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logging.Setup(&buf, "debug", "json"))
	t.Cleanup(func() { _ = logging.Setup(io.Discard, "info", "text") })
	ctx := context.Background()

	tests := []struct {
		name  string
		err   error
		level string
		msg   string
	}{
		{"validation", &smithy.GenericAPIError{Code: "ValidationError", Message: "bad expression"}, "warning", "ValidationError - bad expression"},
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"}, "error", "ThrottlingException - Rate exceeded"},
		{"unexpected", errors.New("connection reset"), "error", "unexpected error: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			_, err := catch(ctx, "GetMetricData", true, func() (int, error) { return 0, tt.err })
			require.ErrorIs(t, err, tt.err)

			line := lastLogLine(t, &buf)
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, tt.msg, line["msg"])
			assert.Equal(t, "GetMetricData", line["op"])
		})
	}
}

func TestCatch_SwallowsWithoutRaise(t *testing.T) {
	require.NoError(t, logging.Setup(io.Discard, "info", "text"))

	v, err := catch(context.Background(), "ReceiveMessage", false, func() (string, error) {
		return "partial", errors.New("boom")
	})
	assert.NoError(t, err)
	assert.Equal(t, "", v)
}
