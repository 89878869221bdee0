package compute_serv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningAverage(t *testing.T) {
	c := &RunningAverage{}

	// one sample equals that sample
	assert.Equal(t, 10.0, c.Update(10, 0))
	assert.Equal(t, 15.0, c.Update(20, 1))
	assert.InDelta(t, 20.0, c.Update(30, 2), 1e-9)
}

func TestIntegratorTrapezoidal(t *testing.T) {
	c := &Integrator{}

	assert.Equal(t, 0.0, c.Update(0, 0))
	assert.Equal(t, 1.0, c.Update(2, 1))
	assert.Equal(t, 4.0, c.Update(4, 2))

	// non-advancing timestamp adds no area
	assert.Equal(t, 4.0, c.Update(100, 2))
}

func TestDifferentiator(t *testing.T) {
	c := &Differentiator{}

	assert.Equal(t, 0.0, c.Update(10, 0))
	assert.Equal(t, 10.0, c.Update(20, 1))
	assert.Equal(t, -5.0, c.Update(10, 3))

	// non-advancing timestamp yields a zero derivative, not a division blowup
	assert.Equal(t, 0.0, c.Update(50, 3))
}

func TestComputationFactory(t *testing.T) {
	for _, kind := range availableComputations() {
		c, err := newComputation(kind)
		require.NoError(t, err, kind)
		require.NotNil(t, c, kind)
	}

	_, err := newComputation("FourierTransform")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FourierTransform")
}
