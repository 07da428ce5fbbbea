package reco

import "github.com/mjibson/go-dsp/fft"

// inverseFFT3 applies a normalised inverse FFT along every axis of an
// x-fastest volume, so the result carries the full 1/N factor.
func inverseFFT3(vol []complex128, shape [3]int) {
	line := make([]complex128, max(shape[0], shape[1], shape[2]))
	stride := [3]int{1, shape[0], shape[0] * shape[1]}
	for axis := range 3 {
		n := shape[axis]
		if n <= 1 {
			continue
		}
		for base := range vol {
			// base must be the first element of a line along axis.
			if (base/stride[axis])%n != 0 {
				continue
			}
			for i := range n {
				line[i] = vol[base+i*stride[axis]]
			}
			out := fft.IFFT(line[:n])
			for i := range n {
				vol[base+i*stride[axis]] = out[i]
			}
		}
	}
}
