package gen

import "github.com/pthm-cable/inkswarm/components"

// InteractionMatrix fills the padded 10×10 matrix for a preset. Values are
// kept small; the integrator clamps speed.
func InteractionMatrix(seed uint32, presetID int) components.InteractionMatrix {
	presetID = ClampPresetID(presetID)
	rnd := NewStream(MatrixSeed(seed, presetID))
	const n = components.MaxSpecies

	var m components.InteractionMatrix
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			// gentle base repulsion
			v := -0.15

			switch presetID {
			case PresetInkVortex:
				// self-attraction with a spiral bias
				if i == j {
					v += 0.55
				} else {
					v -= 0.10
				}
				if (i-j)%3 == 0 {
					v += 0.18
				}
			case PresetNeonKelp:
				// cyclic chain: chase the next species, flee the previous
				if j == (i+1)%n {
					v += 0.50
				}
				if j == (i+n-1)%n {
					v -= 0.25
				}
			case PresetPredatorBloom:
				switch i%2 - j%2 {
				case 1:
					v += 0.45
				case -1:
					v -= 0.35
				default:
					v += 0.10
				}
			case PresetQuietNebula:
				v += (rnd.Next() - 0.5) * 0.18
				if i == j {
					v += 0.20
				} else {
					v -= 0.05
				}
			default:
				v = rnd.Signed() * 0.55
			}

			// jitter breaks exact symmetry
			v += (rnd.Next() - 0.5) * 0.06

			m[i*n+j] = float32(v)
		}
	}
	return m
}
