package ifaceset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLookups(t *testing.T) {
	set, err := New([]Interface{
		{Name: "eth0", MAC: [6]byte{1, 2, 3, 4, 5, 6}, IPv4: [4]byte{10, 0, 0, 1}},
		{Name: "eth1", MAC: [6]byte{1, 2, 3, 4, 5, 7}, IPv4: [4]byte{10, 0, 1, 1}},
	})
	require.NoError(t, err)

	ifc, ok := set.ByName("eth1")
	require.True(t, ok)
	assert.Equal(t, [4]byte{10, 0, 1, 1}, ifc.IPv4)

	ifc, ok = set.ByIPv4([4]byte{10, 0, 0, 1})
	require.True(t, ok)
	assert.Equal(t, "eth0", ifc.Name)

	assert.True(t, set.OwnsIPv4([4]byte{10, 0, 1, 1}), "expected eth1 address to be owned")
	assert.False(t, set.OwnsIPv4([4]byte{8, 8, 8, 8}), "unexpected ownership of unrelated address")
	assert.Len(t, set.All(), 2)
}

func TestNewDuplicateName(t *testing.T) {
	_, err := New([]Interface{
		{Name: "eth0", IPv4: [4]byte{1, 1, 1, 1}},
		{Name: "eth0", IPv4: [4]byte{2, 2, 2, 2}},
	})
	assert.Error(t, err, "expected error on duplicate interface name")
}
