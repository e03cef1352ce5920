package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSequence(t *testing.T, now time.Time) (Sequence, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Sequence{Client: client, Now: func() time.Time { return now }}, srv
}

func TestSequenceAllocatesConsecutiveSerials(t *testing.T) {
	seq, _ := newSequence(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))

	first, err := seq.Next(context.Background())
	require.NoError(t, err)
	second, err := seq.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "080001", first.Value)
	assert.Equal(t, "080002", second.Value)
}

func TestSequenceWrapsAfterFourDigits(t *testing.T) {
	seq, srv := newSequence(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	srv.Set("serial-08-2026", "9998")

	got, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "089999", got.Value)

	got, err = seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "080001", got.Value)
	assert.Equal(t, 1, got.Counter)
}

func TestSequenceUsesPerMonthCounters(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	august := Sequence{Client: client, Now: func() time.Time {
		return time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	}}
	september := Sequence{Client: client, Now: func() time.Time {
		return time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC)
	}}

	for i := 0; i < 3; i++ {
		_, err := august.Next(context.Background())
		require.NoError(t, err)
	}

	got, err := september.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "090001", got.Value)

	got, err = august.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("08%04d", 4), got.Value)
}
