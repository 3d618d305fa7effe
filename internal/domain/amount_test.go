package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSOL(t *testing.T) {
	cases := []struct {
		in   string
		want Lamports
	}{
		{"1", LamportsPerSOL},
		{"1.0", LamportsPerSOL},
		{"0.999999", 999_999_000},
		{"0.01", 10_000_000},
		{" 2.5 ", 2_500_000_000},
		{"0.000000001", 1},
		{"0", 0},
	}
	for _, c := range cases {
		got, err := ParseSOL(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseSOL_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "0.0000000001", "1e30"} {
		_, err := ParseSOL(in)
		assert.Error(t, err, in)
	}
}

func TestLamportsSOL(t *testing.T) {
	assert.Equal(t, "1", Lamports(LamportsPerSOL).SOL())
	assert.Equal(t, "0.01", Lamports(10_000_000).SOL())
	assert.Equal(t, "0.999999", Lamports(999_999_000).SOL())
	assert.Equal(t, "0", Lamports(0).SOL())
}

func TestFeedbackStatusTerminal(t *testing.T) {
	assert.False(t, FeedbackPending.Terminal())
	for _, s := range []FeedbackStatus{FeedbackAIRejected, FeedbackSlotUnavailable, FeedbackRewardFailed, FeedbackSettled} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestPageTotalPages(t *testing.T) {
	assert.Equal(t, 0, Page[int]{Total: 0, Limit: 10}.TotalPages())
	assert.Equal(t, 1, Page[int]{Total: 10, Limit: 10}.TotalPages())
	assert.Equal(t, 3, Page[int]{Total: 21, Limit: 10}.TotalPages())
	assert.Equal(t, 0, Page[int]{Total: 5}.TotalPages())
}
