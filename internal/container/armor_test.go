package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArmorRoundTrip(t *testing.T) {
	data := []byte("container bytes travelling the direct video path")

	armored, err := Armor(data)
	require.NoError(t, err)
	assert.Equal(t, ArmorOverhead(len(data)), len(armored))

	got, err := Unarmor(armored)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestArmorRoundTripOddSizes(t *testing.T) {
	// Sizes that do not divide evenly across the data shards exercise
	// the padding strip on the way back out.
	for _, n := range []int{1, 3, 17, 251} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 31)
		}
		armored, err := Armor(data)
		require.NoError(t, err)

		got, err := Unarmor(armored)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, data, got, "n=%d", n)
	}
}

func TestArmorOverheadMatchesOutput(t *testing.T) {
	for _, n := range []int{1, 4, 5, 100, 1023} {
		data := make([]byte, n)
		armored, err := Armor(data)
		require.NoError(t, err)
		assert.Equal(t, ArmorOverhead(n), len(armored), "n=%d", n)
	}
}
