package sim

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// maxScheduleDraws bounds the redraws of the Poisson schedule.
const maxScheduleDraws = 1000

// newDense returns nil for empty shapes, which gonum refuses to allocate.
func newDense(rows, cols int) *mat.Dense {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	return mat.NewDense(rows, cols, nil)
}

func at(m *mat.Dense, i, j int) float64 {
	if m == nil {
		return 0
	}
	r, c := m.Dims()
	if i < 0 || j < 0 || i >= r || j >= c {
		return 0
	}
	return m.At(i, j)
}

// poissonSchedule builds a users × ticks request matrix where every user
// issues exactly one request. Per-tick counts are drawn from a Poisson
// law with mean users/activeTicks and redrawn until they sum to users;
// after maxScheduleDraws attempts the last draw is used as is, so a few
// users may stay silent. The last bufferTicks ticks stay empty.
func poissonSchedule(users, ticks, bufferTicks int, rng *rand.Rand) *mat.Dense {
	m := newDense(users, ticks)
	if m == nil {
		return nil
	}
	active := max(1, ticks-bufferTicks)
	counts := make([]int, active)
	law := distuv.Poisson{Lambda: float64(users) / float64(active), Src: rng}
	for draw := 0; draw < maxScheduleDraws; draw++ {
		sum := 0
		for i := range counts {
			counts[i] = int(law.Rand())
			sum += counts[i]
		}
		if sum == users {
			break
		}
	}

	row := 0
	for tick, n := range counts {
		for k := 0; k < n && row < users; k++ {
			m.Set(row, tick, 1)
			row++
		}
	}
	return m
}

// bernoulliSchedule flags each (user, tick) cell independently with
// probability p, leaving the last bufferTicks ticks empty.
func bernoulliSchedule(users, ticks, bufferTicks int, p float64, rng *rand.Rand) *mat.Dense {
	m := newDense(users, ticks)
	if m == nil {
		return nil
	}
	active := max(1, ticks-bufferTicks)
	for tick := 0; tick < active && tick < ticks; tick++ {
		for u := 0; u < users; u++ {
			if rng.Float64() < p {
				m.Set(u, tick, 1)
			}
		}
	}
	return m
}
