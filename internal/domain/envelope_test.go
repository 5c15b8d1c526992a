package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope_CopiesArgs(t *testing.T) {
	args := []any{"a", int32(1)}
	env := NewEnvelope("/wifi-data/ap1", args...)

	args[0] = "mutated"
	assert.Equal(t, "a", env.Args[0])
}

func TestEnvelope_ToDashboardMessage(t *testing.T) {
	env := NewEnvelope(NudgeResponseTopic, "AA:BB:CC:DD:EE:FF is already here")

	data, err := json.Marshal(env.ToDashboardMessage())
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"/nudge-response","args":["AA:BB:CC:DD:EE:FF is already here"]}`, string(data))
}

func TestEnvelope_ToDashboardMessage_EmptyArgsIsArray(t *testing.T) {
	data, err := json.Marshal(Envelope{Topic: "/ping"}.ToDashboardMessage())
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"/ping","args":[]}`, string(data))
}

func TestIsTelemetryTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  bool
	}{
		{TelemetryTopic("ap-kitchen"), true},
		{"/wifi-data/", false},
		{NudgeResponseTopic, false},
		{"/other", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTelemetryTopic(tt.topic))
		})
	}
}
