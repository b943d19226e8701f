// ABOUTME: Tests for root enumeration and kind/flag reporting
// ABOUTME: Roots without resolvable types must still be surfaced

package gcroot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clrlens/clrlens/clrheap"
	"github.com/clrlens/clrlens/dac"
	"github.com/clrlens/clrlens/target"
	"github.com/clrlens/clrlens/target/memtarget"
	"github.com/clrlens/clrlens/typesys"
)

func TestEnumerateRoots(t *testing.T) {
	tgt := memtarget.New(target.ArchAMD64)
	p := dac.NewMemProvider(dac.FlavorCore)
	p.SetRevisionSource(tgt.Revision)
	p.AddType(&dac.TypeData{MethodTable: 0x2000, Name: "MyApp.Holder", BaseSize: 24})

	obj := uint64(0x10100)
	tgt.AddRegion(0x10000, make([]byte, 0x1000))
	require.NoError(t, tgt.PutPointer(obj, 0x2000))
	p.AddSegment(dac.SegmentData{Start: 0x10000, End: 0x11000})

	p.AddRoot(dac.RootData{Kind: dac.RootStatic, Name: "static var MyApp.Holder.s", Address: 0x8000, Object: obj})
	p.AddRoot(dac.RootData{
		Kind: dac.RootPinnedHandle, Name: "pinned handle", Address: 0x8008, Object: obj,
		Flags: dac.RootFlagPinned | dac.RootFlagPossibleFalsePositive,
	})
	// Object with no resolvable type: surfaced with a nil Type, the
	// collector decides what to do with it.
	p.AddRoot(dac.RootData{Kind: dac.RootLocal, Name: "local var", Address: 0x8010, Object: 0x10800})

	heap, err := clrheap.NewHeap(p, tgt, typesys.NewResolver(p, tgt), nil)
	require.NoError(t, err)
	roots, err := NewEnumerator(p, heap).EnumerateRoots()
	require.NoError(t, err)
	require.Len(t, roots, 3)

	assert.Equal(t, KindStatic, roots[0].Kind)
	require.NotNil(t, roots[0].Type)
	assert.Equal(t, "MyApp.Holder", roots[0].Type.Name)
	assert.False(t, roots[0].Pinned())

	assert.Equal(t, KindPinnedHandle, roots[1].Kind)
	assert.True(t, roots[1].Pinned())
	assert.True(t, roots[1].PossibleFalsePositive())
	assert.False(t, roots[1].Interior())

	assert.Equal(t, KindLocal, roots[2].Kind)
	assert.Nil(t, roots[2].Type)
}

func TestEnumerateRootsStaleHeap(t *testing.T) {
	tgt := memtarget.New(target.ArchAMD64)
	p := dac.NewMemProvider(dac.FlavorCore)
	p.SetRevisionSource(tgt.Revision)
	p.AddRoot(dac.RootData{Kind: dac.RootStatic, Name: "static var X.y", Object: 0x10100})

	heap, err := clrheap.NewHeap(p, tgt, typesys.NewResolver(p, tgt), nil)
	require.NoError(t, err)
	tgt.BumpRevision()

	_, err = NewEnumerator(p, heap).EnumerateRoots()
	assert.ErrorIs(t, err, clrheap.ErrRevisionChanged)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "static", KindStatic.String())
	assert.Equal(t, "finalizer", KindFinalizer.String())
	assert.Equal(t, "kind(200)", Kind(200).String())
}
