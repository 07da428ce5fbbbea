package pdg

import (
	"math"
	"math/cmplx"
)

// PulseFactors holds the rotation coefficients of one RF pulse, indexed by
// Relation.
type PulseFactors [RelZToPlusConj + 1]complex128

// NewPulseFactors computes the coefficients for a pulse of angle alpha and
// phase phi. A pulse applied to equilibrium produces F+ = sin(alpha)·e^{i·phi}.
func NewPulseFactors(alpha, phi float64) PulseFactors {
	c := math.Cos(alpha / 2)
	s := math.Sin(alpha / 2)
	sa := math.Sin(alpha)
	e1 := cmplx.Rect(1, phi)
	e2 := cmplx.Rect(1, 2*phi)

	var f PulseFactors
	f[RelKeep] = complex(c*c, 0)
	f[RelFlip] = -e2 * complex(s*s, 0)
	f[RelPlusToZ] = -0.5 * cmplx.Conj(e1) * complex(sa, 0)
	f[RelPlusToZConj] = -0.5 * e1 * complex(sa, 0)
	f[RelZToZ] = complex(math.Cos(alpha), 0)
	f[RelZToPlus] = e1 * complex(sa, 0)
	f[RelZToPlusConj] = e1 * complex(sa, 0)
	return f
}

// Relaxation is the tissue data an Operator needs.
type Relaxation struct {
	T1, T2 float64 // s
	T2Dash float64 // s, zero disables reversible dephasing
	B0     float64 // Hz
	D      float64 // m²/s
	B1     float64 // relative transmit field, zero reads as 1
}

// Operator is a step instantiated for one tissue.
type Operator struct {
	free     bool
	e1, e2   float64
	prec     complex128
	d        float64
	recovery float64
	t2dash   float64

	// scaled is set when the pulse angle differs from the nominal one and
	// the edge factors must be recomputed.
	scaled bool
	pulse  PulseFactors
}

// Instantiate binds step s to tissue t.
func Instantiate(s *Step, t Relaxation) Operator {
	if s.Kind == StepPulse {
		op := Operator{t2dash: t.T2Dash}
		if t.B1 != 0 && t.B1 != 1 {
			op.scaled = true
			op.pulse = NewPulseFactors(s.Angle*t.B1, s.Phase)
		}
		return op
	}
	op := Operator{free: true, e1: 1, e2: 1, prec: 1, d: t.D, t2dash: t.T2Dash}
	if s.Duration > 0 {
		op.e1 = math.Exp(-s.Duration / t.T1)
		op.e2 = math.Exp(-s.Duration / t.T2)
		if t.B0 != 0 {
			op.prec = cmplx.Rect(1, -2*math.Pi*t.B0*s.Duration)
		}
	}
	op.recovery = 1 - op.e1
	return op
}

// Apply returns the multiplier and additive term of edge e, so that the
// edge contributes mul·src + add to its destination.
func (op *Operator) Apply(e *Edge) (mul, add complex128) {
	if !op.free {
		if op.scaled {
			return op.pulse[e.Rel], 0
		}
		return e.Factor, 0
	}
	diff := 1.0
	if op.d != 0 && e.B != 0 {
		diff = math.Exp(-op.d * e.B)
	}
	switch e.Rel {
	case RelTransverse:
		return e.Factor * op.prec * complex(op.e2*diff, 0), 0
	case RelRecovery:
		return e.Factor * complex(op.e1, 0), complex(op.recovery, 0)
	default:
		return e.Factor * complex(op.e1*diff, 0), 0
	}
}

// Dephasing returns the T2' attenuation e^{-|tau|/T2'} of a state with
// dephasing time tau. It is applied when a state is sampled, never while
// propagating, because a spin echo reverses it.
func (op *Operator) Dephasing(tau int64) float64 {
	if op.t2dash <= 0 || tau == 0 {
		return 1
	}
	return math.Exp(-math.Abs(float64(tau)*TauTick) / op.t2dash)
}

// DiffusionWeight returns the b-value style integral ∫|2πk(t)/FOV|² dt for a
// state whose dephasing index ramps linearly from k1 to k2 over dt seconds.
// Axes with a zero field of view are ignored.
func DiffusionWeight(k1, k2 [3]int32, kres int32, fov [3]float64, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	b := 0.0
	for a := range fov {
		if fov[a] <= 0 {
			continue
		}
		q1 := float64(k1[a]) / float64(kres)
		q2 := float64(k2[a]) / float64(kres)
		scale := 2 * math.Pi / fov[a]
		b += scale * scale * (q1*q1 + q1*q2 + q2*q2) / 3
	}
	return b * dt
}

// Norm returns the ensemble norm of a node table weighted the way the
// stored states represent the full state space: every + node counts once,
// Z(0) once and every other Z node twice (for its folded partner).
func Norm(nodes []Node) float64 {
	sum := 0.0
	for i := range nodes {
		n := &nodes[i]
		w := real(n.Weight)*real(n.Weight) + imag(n.Weight)*imag(n.Weight)
		if n.Kind == KindZ && !n.IsGround() {
			w *= 2
		}
		sum += w
	}
	return math.Sqrt(sum)
}
