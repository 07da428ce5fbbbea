package sequence

// KSpace returns the nominal k-space position of every ADC sample in
// acquisition order. The position is the cumulative gradient moment since the
// last excitation; refocusing pulses mirror it through the origin. Pulses of
// other usages leave it unchanged.
func (s *Sequence) KSpace() [][3]float64 {
	traj := make([][3]float64, 0, s.ADCCount())
	var k [3]float64
	for r := range s.Repetitions {
		rep := &s.Repetitions[r]
		switch rep.Pulse.Usage {
		case UsageExcitation:
			k = [3]float64{}
		case UsageRefocusing:
			k = [3]float64{-k[0], -k[1], -k[2]}
		}
		for _, ev := range rep.Events {
			for a := range k {
				k[a] += ev.Gradient[a]
			}
			if ev.ADC {
				traj = append(traj, k)
			}
		}
	}
	return traj
}
