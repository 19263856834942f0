package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_backtest/internal/usecase"
)

func TestMovingAverage_TimeWindow(t *testing.T) {
	ma := usecase.NewMovingAverage(time.Hour)
	_, ok := ma.Value()
	assert.False(t, ok, "no value before the first bar")

	ma.Update(bar(t0, "99", "101"))
	v, ok := ma.Value()
	require.True(t, ok)
	assert.True(t, v.Equal(d("100")))

	ma.Update(bar(t0.Add(30*time.Minute), "109", "111"))
	v, _ = ma.Value()
	assert.True(t, v.Equal(d("105")))

	// cutoff is t0+1m, the first point drops out
	ma.Update(bar(t0.Add(61*time.Minute), "129", "131"))
	v, _ = ma.Value()
	assert.True(t, v.Equal(d("120")), "got %s", v)
	assert.Equal(t, 2, ma.Len())
}

func TestMovingAverage_KeepsPointOnCutoff(t *testing.T) {
	ma := usecase.NewMovingAverage(time.Hour)
	ma.Update(bar(t0, "10", "10"))
	ma.Update(bar(t0.Add(time.Hour), "20", "20"))

	v, _ := ma.Value()
	assert.True(t, v.Equal(d("15")))
}

func TestMovingAverage_RoundsToSignalScale(t *testing.T) {
	ma := usecase.NewMovingAverage(time.Hour)
	ma.Update(bar(t0, "1", "1"))
	ma.Update(bar(t0.Add(time.Minute), "1", "1"))
	ma.Update(bar(t0.Add(2*time.Minute), "2", "2"))

	v, _ := ma.Value()
	assert.True(t, v.Equal(d("1.33333333")), "got %s", v)
}

func TestSignalCollector_Values(t *testing.T) {
	ma := usecase.NewMovingAverage(time.Hour)
	c := usecase.NewSignalCollector(ma)
	assert.Empty(t, c.Values())

	c.Update(bar(t0, "99", "101"))
	v, ok := c.Values().Get(usecase.MovingAverageSignal)
	require.True(t, ok)
	assert.True(t, v.Equal(d("100")))
}
