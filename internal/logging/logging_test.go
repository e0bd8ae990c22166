package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithOutput_JSONInProd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupWithOutput("warn", "prod", &buf))
	defer SetupWithOutput("info", "dev", &bytes.Buffer{})

	assert.Equal(t, log.WarnLevel, log.GetLevel())
	log.Info("hidden")
	log.WithField("pipeline_id", "p1").Warn("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "p1", entry["pipeline_id"])
}

func TestSetupWithOutput_InvalidLevel(t *testing.T) {
	assert.Error(t, SetupWithOutput("verbose", "dev", &bytes.Buffer{}))
}
