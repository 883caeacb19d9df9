package infobus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTimes(t *testing.T) {
	var resp RoutesResponse
	require.NoError(t, json.Unmarshal([]byte(routesBody), &resp))

	got := ExtractTimes(&resp)
	assert.Equal(t, []Departure{
		{Depart: "08:15", Arrive: "12:40", Price: "19.90", Rating: ""},
		{Depart: "21:30", Arrive: "02:00", Price: "25", Rating: "4.5"},
	}, got)
}

func TestExtractTimesIgnoresFailedStatus(t *testing.T) {
	var resp RoutesResponse
	require.NoError(t, json.Unmarshal([]byte(`{"status":0,"routes":[{"ClearDepTime":"1000"}]}`), &resp))
	assert.Nil(t, ExtractTimes(&resp))
	assert.Nil(t, ExtractTimes(nil))
}

func TestExtractTimesKeepsUnusualClock(t *testing.T) {
	resp := &RoutesResponse{Status: true, Routes: []Route{{ClearDepTime: "9:05", ClearArrTime: ""}}}
	got := ExtractTimes(resp)
	require.Len(t, got, 1)
	assert.Equal(t, "9:05", got[0].Depart)
	assert.Equal(t, "", got[0].Arrive)
}

func TestFormatClock(t *testing.T) {
	tests := map[string]string{
		"2130":  "21:30",
		"0005":  "00:05",
		"9:05":  "9:05",
		"21:30": "21:30",
		"21a0":  "21a0",
		"930":   "930",
		"":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatClock(in), in)
	}
}

func TestFlexBool(t *testing.T) {
	tests := map[string]bool{
		`true`:    true,
		`false`:   false,
		`1`:       true,
		`0`:       false,
		`0.0`:     false,
		`"ok"`:    true,
		`"0"`:     false,
		`"false"`: false,
		`""`:      false,
		`null`:    false,
		`{}`:      true,
	}
	for in, want := range tests {
		var f FlexBool
		require.NoError(t, json.Unmarshal([]byte(in), &f), in)
		assert.Equal(t, want, bool(f), in)
	}
}

func TestFlexString(t *testing.T) {
	tests := map[string]string{
		`"abc"`: "abc",
		`12.5`:  "12.5",
		`true`:  "true",
		`null`:  "",
	}
	for in, want := range tests {
		var f FlexString
		require.NoError(t, json.Unmarshal([]byte(in), &f), in)
		assert.Equal(t, want, string(f), in)
	}
}
