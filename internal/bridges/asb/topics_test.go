package asb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTopics(t *testing.T) {
	assert.Equal(t, "/1001/get/switch", SwitchStateTopic(0x1001))
	assert.Equal(t, "/0fa2/get/level", LevelStateTopic(0x0FA2))
	assert.Equal(t, "/0001/lastboot", LastBootTopic(0x0001))
}

func TestParseControlTopic(t *testing.T) {
	tests := []struct {
		name   string
		topic  string
		want   ControlRequest
		opcode byte
		echo   string
	}{
		{
			name:   "switch",
			topic:  "/asysbus/1001/set/switch",
			want:   ControlRequest{Target: 0x1001, AddressSegment: "1001", Leaf: LeafSwitch},
			opcode: CmdSwitch,
			echo:   "/1001/get/switch",
		},
		{
			name:   "level",
			topic:  "/asysbus/0fa2/set/level",
			want:   ControlRequest{Target: 0x0FA2, AddressSegment: "0fa2", Leaf: LeafLevel},
			opcode: CmdPercent,
			echo:   "/0fa2/get/level",
		},
		{
			name:   "uppercase address keeps its spelling",
			topic:  "/asysbus/0FA2/set/level",
			want:   ControlRequest{Target: 0x0FA2, AddressSegment: "0FA2", Leaf: LeafLevel},
			opcode: CmdPercent,
			echo:   "/0FA2/get/level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseControlTopic("/asysbus", tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.opcode, got.Opcode())
			assert.Equal(t, tt.echo, got.EchoTopic())
		})
	}
}

func TestParseControlTopicRejects(t *testing.T) {
	topics := []string{
		"/other/1001/set/switch",
		"/asysbus/1001/get/switch",
		"/asysbus/1001/set/dim",
		"/asysbus/1001/set/switch/extra",
		"/asysbus/1001/set",
		"/asysbus/xyz/set/switch",
		"/asysbus/10000/set/switch",
		"/asysbus/0000/set/switch",
		"/asysbus//set/switch",
	}

	for _, topic := range topics {
		t.Run(topic, func(t *testing.T) {
			_, err := ParseControlTopic("/asysbus", topic)
			assert.ErrorIs(t, err, ErrInvalidTopic)
		})
	}
}

func TestParseControlPayload(t *testing.T) {
	valid := map[string]byte{"0": 0, "1": 1, "77": 77, "255": 255, " 42\n": 42}
	for in, want := range valid {
		got, err := ParseControlPayload([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "256", "-1", "on", "1.5", "0x10"} {
		_, err := ParseControlPayload([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidPayload, in)
	}
}
