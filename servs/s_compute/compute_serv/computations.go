package compute_serv

import "fmt"

// Computation is a stateful transform fed one timestamped sample at a time.
// Update returns the new derived value.
type Computation interface {
	Update(value, t float64) float64
}

// RunningAverage keeps the cumulative mean of all samples.
type RunningAverage struct {
	count int
	sum   float64
}

func (c *RunningAverage) Update(value, _ float64) float64 {
	c.count++
	c.sum += value
	return c.sum / float64(c.count)
}

// Integrator accumulates the signal's area over time with the trapezoidal
// rule. The first sample yields 0.0 since there is no interval yet.
type Integrator struct {
	primed   bool
	lastVal  float64
	lastTime float64
	integral float64
}

func (c *Integrator) Update(value, t float64) float64 {
	if c.primed {
		if dt := t - c.lastTime; dt > 0 {
			c.integral += (value + c.lastVal) / 2.0 * dt
		}
	}
	c.primed = true
	c.lastVal = value
	c.lastTime = t
	return c.integral
}

// Differentiator computes the rate of change between consecutive samples.
// The first sample yields 0.0.
type Differentiator struct {
	primed   bool
	lastVal  float64
	lastTime float64
}

func (c *Differentiator) Update(value, t float64) float64 {
	var derivative float64
	if c.primed {
		if dt := t - c.lastTime; dt > 0 {
			derivative = (value - c.lastVal) / dt
		}
	}
	c.primed = true
	c.lastVal = value
	c.lastTime = t
	return derivative
}

// newComputation maps a kind string onto a fresh instance.
func newComputation(kind string) (Computation, error) {
	switch kind {
	case "RunningAverage":
		return &RunningAverage{}, nil
	case "Integrator":
		return &Integrator{}, nil
	case "Differentiator":
		return &Differentiator{}, nil
	}
	return nil, fmt.Errorf("unknown computation type: %s", kind)
}

// availableComputations lists the kinds newComputation accepts.
func availableComputations() []string {
	return []string{"Differentiator", "Integrator", "RunningAverage"}
}
