package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "debug", "json"))
	t.Cleanup(func() { _ = Setup(&bytes.Buffer{}, "info", "text") })

	ctx := WithFields(context.Background(), Fields{RunID: "run-1", Component: "poller"})
	ctx = WithFields(ctx, Fields{Service: "ec2"})
	Entry(ctx).Warn("evicted quota")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "poller", line["component"])
	assert.Equal(t, "ec2", line["service"])
	assert.NotContains(t, line, "region")
	assert.Equal(t, "warning", line["level"])
}

func TestSetup_RejectsBadInput(t *testing.T) {
	assert.Error(t, Setup(&bytes.Buffer{}, "loud", "text"))
	assert.Error(t, Setup(&bytes.Buffer{}, "info", "xml"))
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
