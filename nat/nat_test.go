package nat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) (*Table, *time.Time) {
	t.Helper()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := New([4]byte{203, 0, 113, 1}, nil)
	tbl.now = func() time.Time { return clock }
	return tbl, &clock
}

func TestInsertMappingSequentialAllocation(t *testing.T) {
	tbl, _ := newTestTable(t)

	m1, err := tbl.InsertMapping([4]byte{10, 0, 0, 5}, 100, TypeICMP)
	require.NoError(t, err)
	m2, err := tbl.InsertMapping([4]byte{10, 0, 0, 6}, 101, TypeICMP)
	require.NoError(t, err)

	assert.Equal(t, uint16(auxExtMin), m1.ExtAux)
	assert.Equal(t, uint16(auxExtMin+1), m2.ExtAux)
	assert.Equal(t, [4]byte{203, 0, 113, 1}, m1.ExtIP)
}

func TestLookupInternalAndExternal(t *testing.T) {
	tbl, _ := newTestTable(t)
	m, err := tbl.InsertMapping([4]byte{10, 0, 0, 5}, 100, TypeICMP)
	require.NoError(t, err)

	got, ok := tbl.LookupInternal([4]byte{10, 0, 0, 5}, 100, TypeICMP)
	require.True(t, ok)
	assert.Equal(t, m.ExtAux, got.ExtAux)

	got, ok = tbl.LookupExternal(m.ExtAux, TypeICMP)
	require.True(t, ok)
	assert.Equal(t, m.IntIP, got.IntIP)

	_, ok = tbl.LookupExternal(m.ExtAux, TypeTCP)
	assert.False(t, ok, "lookup must be scoped per protocol type")
}

func TestInsertMappingSkipsCollisions(t *testing.T) {
	tbl, _ := newTestTable(t)
	tbl.nextAux[TypeICMP] = auxExtMin
	tbl.byExternal[externalKey{typ: TypeICMP, auxExt: auxExtMin}] = &Mapping{Type: TypeICMP}

	m, err := tbl.InsertMapping([4]byte{10, 0, 0, 9}, 1, TypeICMP)
	require.NoError(t, err)
	assert.Equal(t, uint16(auxExtMin+1), m.ExtAux, "expected collision to be skipped")
}

func TestInsertMappingExhaustion(t *testing.T) {
	tbl, _ := newTestTable(t)
	for aux := uint16(auxExtMin); ; aux++ {
		tbl.byExternal[externalKey{typ: TypeICMP, auxExt: aux}] = &Mapping{Type: TypeICMP}
		if aux == auxExtMax {
			break
		}
	}
	_, err := tbl.InsertMapping([4]byte{10, 0, 0, 9}, 1, TypeICMP)
	assert.Error(t, err, "expected exhaustion error when every aux is taken")
}

func TestSweepExpiresIdleMappings(t *testing.T) {
	tbl, clock := newTestTable(t)
	m, err := tbl.InsertMapping([4]byte{10, 0, 0, 5}, 100, TypeICMP)
	require.NoError(t, err)

	*clock = clock.Add(DefaultICMPTimeout - time.Second)
	tbl.Sweep()
	_, ok := tbl.byExternal[externalKey{typ: TypeICMP, auxExt: m.ExtAux}]
	assert.True(t, ok, "mapping should still be alive just under the timeout")

	*clock = clock.Add(2 * time.Second)
	tbl.Sweep()
	_, ok = tbl.LookupExternal(m.ExtAux, TypeICMP)
	assert.False(t, ok, "mapping should be expired past the timeout")
}
