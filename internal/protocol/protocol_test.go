package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"header": "command", "data": {"command": "host"}}`))
	require.NoError(t, err)
	require.Equal(t, HeaderCommand, env.Header)

	var cmd CommandData
	require.NoError(t, env.Decode(&cmd))
	require.Equal(t, "host", cmd.Command)
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing header", `{"data": {"command": "host"}}`},
		{"empty header", `{"header": "", "data": {}}`},
		{"missing data", `{"header": "command"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"header": "command",`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMalformed)
}

func TestEncode_Roundtrip(t *testing.T) {
	raw, err := Encode(HeaderAlert, AlertData{Message: "hello"})
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, HeaderAlert, env.Header)

	var alert AlertData
	require.NoError(t, env.Decode(&alert))
	require.Equal(t, "hello", alert.Message)
}

func TestQuizStatsData_MarshalPreservesOrder(t *testing.T) {
	stats := QuizStatsData{
		{UID: 7, Username: "bob", Score: 5},
		{UID: 2, Username: "carol", Score: 5},
		{UID: 31, Username: "alice", Score: 3},
	}
	raw, err := Encode(HeaderQuizStats, stats)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"header": "quiz_stats", "data": {"7": {"username": "bob", "score": 5}, "2": {"username": "carol", "score": 5}, "31": {"username": "alice", "score": 3}}}`,
		string(raw))

	// Key order is the slice order, not numeric order.
	require.Contains(t, string(raw),
		`{"7":{"username":"bob","score":5},"2":{"username":"carol","score":5},"31":{"username":"alice","score":3}}`)
}

func TestQuizStatsData_MarshalEmpty(t *testing.T) {
	raw, err := QuizStatsData{}.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "{}", string(raw))
}

func TestState_Valid(t *testing.T) {
	require.True(t, StateMenu.Valid())
	require.True(t, StateLobby.Valid())
	require.True(t, StateInGame.Valid())
	require.False(t, State("").Valid())
	require.False(t, State("inSpace").Valid())
}
