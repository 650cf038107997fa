package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSilentDetectsAllZeroSamples(t *testing.T) {
	t.Parallel()

	silent, metrics := IsSilent(make([]float32, 16000), -65)
	require.True(t, silent)
	require.True(t, math.IsInf(metrics.RMSdBFS, -1))
	require.True(t, math.IsInf(metrics.PeakdBFS, -1))
	require.Equal(t, 16000, metrics.Samples)
}

func TestIsSilentDetectsSpeechLikeSignal(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(0.25 * math.Sin(2*math.Pi*440*float64(i)/16000.0))
	}

	silent, metrics := IsSilent(samples, -65)
	require.False(t, silent)
	require.Greater(t, metrics.PeakdBFS, -20.0)
	require.Greater(t, metrics.RMSdBFS, -20.0)
}

func TestIsSilentTreatsEmptyAsSilent(t *testing.T) {
	t.Parallel()

	silent, metrics := IsSilent(nil, -65)
	require.True(t, silent)
	require.Zero(t, metrics.Samples)
}

func TestIsSilentPeakGateCatchesQuietHum(t *testing.T) {
	t.Parallel()

	// -80 dBFS hum: under both the RMS threshold and the +6dB peak gate.
	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = float32(0.0001 * math.Sin(2*math.Pi*50*float64(i)/8000.0))
	}

	silent, metrics := IsSilent(samples, -65)
	require.True(t, silent)
	require.Less(t, metrics.RMSdBFS, -65.0)
}
