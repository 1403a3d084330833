package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, "info", "json"), "signup_guard")

	log.Info().Str("user_id", "u-1").Msg("account created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "signup_guard", line["component"])
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, "account created", line["message"])
}

func TestNewDropsBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")
	defer New(&buf, "info", "json")

	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "**", MaskSecret("a"))
	assert.Equal(t, "BR****", MaskSecret("BRO-2024-XYZ"))
}
