package dashboard

import "codeberg.org/mutker/encoderctl/internal/buffer"

// Decimate reduces a sample series to at most target points by uniform
// striding, preserving insertion order. The most recent sample is always
// kept so the plot never trails the live value.
func Decimate(samples []buffer.Sample, target int) []buffer.Sample {
	if target <= 0 || len(samples) <= target {
		return samples
	}

	out := make([]buffer.Sample, 0, target)
	stride := float64(len(samples)-1) / float64(target-1)
	for i := 0; i < target-1; i++ {
		out = append(out, samples[int(float64(i)*stride)])
	}
	out = append(out, samples[len(samples)-1])

	return out
}
