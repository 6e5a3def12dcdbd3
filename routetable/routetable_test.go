package routetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mask(bits int) [4]byte {
	var m [4]byte
	for i := 0; i < bits; i++ {
		m[i/8] |= 0x80 >> uint(i%8)
	}
	return m
}

func TestLookupLongestPrefix(t *testing.T) {
	tbl := New()
	tbl.Insert(Route{Dest: [4]byte{10, 0, 0, 0}, Mask: mask(8), Interface: "eth0"})
	tbl.Insert(Route{Dest: [4]byte{10, 0, 1, 0}, Mask: mask(24), Interface: "eth1"})
	tbl.Insert(Route{Dest: [4]byte{10, 0, 1, 128}, Mask: mask(25), Interface: "eth2"})

	got, ok := tbl.Lookup([4]byte{10, 0, 1, 200})
	require.True(t, ok)
	assert.Equal(t, "eth2", got.Interface, "expected longest prefix to win")

	got, ok = tbl.Lookup([4]byte{10, 0, 1, 5})
	require.True(t, ok)
	assert.Equal(t, "eth1", got.Interface)

	got, ok = tbl.Lookup([4]byte{10, 5, 5, 5})
	require.True(t, ok)
	assert.Equal(t, "eth0", got.Interface)

	_, ok = tbl.Lookup([4]byte{192, 168, 1, 1})
	assert.False(t, ok, "expected no match for unrelated address")
}

func TestLookupEmptyTable(t *testing.T) {
	tbl := New()
	_, ok := tbl.Lookup([4]byte{1, 2, 3, 4})
	assert.False(t, ok, "expected no match on empty table")
}

func TestInsertTieBreakKeepsFirst(t *testing.T) {
	tbl := New()
	tbl.Insert(Route{Dest: [4]byte{10, 0, 0, 0}, Mask: mask(24), Interface: "first"})
	tbl.Insert(Route{Dest: [4]byte{10, 0, 0, 0}, Mask: mask(24), Interface: "second"})

	got, ok := tbl.Lookup([4]byte{10, 0, 0, 1})
	require.True(t, ok)
	assert.Equal(t, "first", got.Interface, "expected first insertion to win the tie")
}

func TestLookupByName(t *testing.T) {
	tbl := New()
	tbl.Insert(Route{Dest: [4]byte{0, 0, 0, 0}, Mask: mask(0), Gateway: [4]byte{10, 0, 0, 1}, Interface: "eth0"})
	r, ok := tbl.LookupByName("eth0")
	require.True(t, ok)
	assert.Equal(t, [4]byte{10, 0, 0, 1}, r.Gateway)

	_, ok = tbl.LookupByName("eth9")
	assert.False(t, ok, "expected no route for unconfigured interface")
}
