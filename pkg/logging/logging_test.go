package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurodesk/pancake/pkg/config"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, config.Logging{Level: "warn"})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("template", "a.html").Msg("shown")

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "a.html", event["template"])
	assert.Equal(t, "shown", event["message"])
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, config.Logging{Text: true})
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("flattened")
	assert.Contains(t, buf.String(), "flattened")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger(&bytes.Buffer{}, config.Logging{Level: "loud"})
	assert.Error(t, err)
}
