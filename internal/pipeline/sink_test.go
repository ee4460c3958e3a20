package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONSink(&buf)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.Emit(types.Event{
		SessionID: "abc",
		Index:     7,
		Frame:     grayFrame(4, 4),
		Results:   []types.MatchResult{{Box: types.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}, Label: "Alice", Distance: 0.25, Accepted: true}},
		FPS:       14.5,
		At:        at,
	}))
	require.NoError(t, s.Emit(types.Event{SessionID: "abc", Index: 8, At: at}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var got map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &got))
	assert.Equal(t, "abc", got["session"])
	assert.Equal(t, 7.0, got["index"])
	assert.Equal(t, 14.5, got["fps"])
	assert.NotContains(t, got, "Frame")
	results := got["results"].([]any)
	require.Len(t, results, 1)
	r := results[0].(map[string]any)
	assert.Equal(t, "Alice", r["label"])
	assert.Equal(t, true, r["accepted"])
	assert.Equal(t, map[string]any{"x1": 1.0, "y1": 2.0, "x2": 3.0, "y2": 4.0}, r["box"])
}

func TestJSONSinkWritesNonFiniteDistanceAsNull(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONSink(&buf)

	require.NoError(t, s.Emit(types.Event{
		SessionID: "abc",
		Index:     1,
		Results: []types.MatchResult{
			{Label: types.Unknown, Distance: math.NaN()},
			{Label: types.Unknown, Distance: math.Inf(1)},
			{Label: "Bob", Distance: 0.5, Accepted: true},
		},
	}))

	var got struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Results, 3)
	for _, r := range got.Results[:2] {
		assert.Contains(t, r, "distance")
		assert.Nil(t, r["distance"])
		assert.Equal(t, types.Unknown, r["label"])
	}
	assert.Equal(t, 0.5, got.Results[2]["distance"])
	assert.Equal(t, "Bob", got.Results[2]["label"])
	assert.Equal(t, true, got.Results[2]["accepted"])
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(ev types.Event) error {
	f.calls++
	return errors.New("window closed")
}

func TestMultiSink(t *testing.T) {
	rec := &recorder{}
	bad := &failingSink{}
	m := MultiSink{bad, rec}

	err := m.Emit(types.Event{Index: 1})
	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, rec.events, 1, "a failing sink does not starve the others")
}

func TestLogSinkRateLimits(t *testing.T) {
	s := &LogSink{Log: logs.NewTestingLog(t), Every: time.Second}
	t0 := time.Unix(100, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Emit(types.Event{Index: i, At: t0.Add(time.Duration(i) * 300 * time.Millisecond)}))
	}
	// Events at 300, 600 and 900ms fall inside the first second
	assert.Equal(t, t0, s.last)

	require.NoError(t, s.Emit(types.Event{Index: 9, At: t0.Add(1500 * time.Millisecond)}))
	assert.Equal(t, t0.Add(1500*time.Millisecond), s.last)
}

func TestAnyStop(t *testing.T) {
	never := StopFunc(func() bool { return false })
	always := StopFunc(func() bool { return true })
	assert.False(t, AnyStop{never, never}.Stopped())
	assert.True(t, AnyStop{never, always}.Stopped())
	assert.False(t, AnyStop{}.Stopped())
}
