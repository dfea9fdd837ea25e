package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"carelog/internal/shared/contextkeys"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerInterface_Contract(t *testing.T) {
	var _ Logger = NewLogger()
	var _ Logger = NewLoggerWithConfig("info", "json")
	var _ Logger = NewNopLogger()
}

func TestLogrusLogger_JSONCarriesContextAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput("debug", "json", &buf)

	ctx := contextkeys.WithUserID(context.Background(), "user1")
	ctx = contextkeys.WithOperation(ctx, "addDocument")
	log.WithComponent("gateway").WithContext(ctx).Info("stored")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "stored", line["message"])
	assert.Equal(t, "gateway", line["component"])
	assert.Equal(t, "user1", line["user_id"])
	assert.Equal(t, "addDocument", line["operation"])
}

func TestLogrusLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput("warn", "json", &buf)
	log.Info("hidden")
	assert.Zero(t, buf.Len())
	log.Warnf("shown %d", 1)
	assert.Contains(t, buf.String(), "shown 1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, parseLevel(""))
	assert.Equal(t, logrus.InfoLevel, parseLevel("nonsense"))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := NewLoggerWithConfig("info", "text")
	assert.Same(t, l, OrNop(l))
}
