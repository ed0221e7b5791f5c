package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_RoundTrip(t *testing.T) {
	original := NewMessage([]string{"PETR4.SA", "VALE3.SA"}, time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC))
	original.RetryCount = 3

	body, err := original.Encode()
	require.NoError(t, err)

	decoded, err := Decode(body)
	require.NoError(t, err)

	assert.Equal(t, original.JobID, decoded.JobID)
	assert.Equal(t, original.TickerList, decoded.TickerList)
	assert.True(t, original.ExecutionTime.Equal(decoded.ExecutionTime))
	assert.Equal(t, 3, decoded.RetryCount)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
	assert.True(t, original.UpdatedAt.Equal(decoded.UpdatedAt))
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"missing job_id", `{"ticker_list":["A"],"retry_count":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestMessage_Successor(t *testing.T) {
	msg := NewMessage([]string{"A", "B"}, time.Now())
	msg.RetryCount = 7

	next := time.Date(2025, 3, 11, 16, 30, 0, 0, time.UTC)
	successor := msg.Successor(next)

	assert.NotEqual(t, msg.JobID, successor.JobID)
	assert.Equal(t, msg.TickerList, successor.TickerList)
	assert.True(t, successor.ExecutionTime.Equal(next))
	assert.Equal(t, 0, successor.RetryCount)
}

func TestMessage_WithRetry(t *testing.T) {
	msg := NewMessage([]string{"A"}, time.Now())

	retry := msg.WithRetry()

	assert.Equal(t, 1, retry.RetryCount)
	assert.Equal(t, msg.JobID, retry.JobID)
	assert.Equal(t, 0, msg.RetryCount, "original must not be mutated")
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusRunning, StatusSuccess, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, true}, // shutdown revert
		{StatusPending, StatusSuccess, false},
		{StatusPending, StatusFailed, false},
		{StatusSuccess, StatusRunning, false},
		{StatusSuccess, StatusPending, false},
		{StatusFailed, StatusRunning, false},
		{StatusFailed, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestJob_Transition(t *testing.T) {
	j := &Job{Status: StatusPending}

	require.NoError(t, j.Transition(StatusRunning))
	require.NoError(t, j.Transition(StatusSuccess))

	err := j.Transition(StatusRunning)
	assert.Error(t, err)
	assert.Equal(t, StatusSuccess, j.Status, "status unchanged after rejected transition")
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
