// ABOUTME: End-to-end tests over a snapshot: open, walk, collect, export
// ABOUTME: Exercises the full path from snapshot bytes to the object tree

package clrlens_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clrlens/clrlens"
	"github.com/clrlens/clrlens/clrheap"
	"github.com/clrlens/clrlens/dac"
	"github.com/clrlens/clrlens/dumpfile"
	"github.com/clrlens/clrlens/objgraph"
	"github.com/clrlens/clrlens/target"
	"github.com/clrlens/clrlens/target/memtarget"
	"github.com/clrlens/clrlens/typesys"
)

const (
	mtHolder = 0x2000
	mtInt32  = 0x2100
	mtString = 0x2200

	heapBase   = 0x10000
	holderAddr = 0x10100
	strAddr    = 0x10200
)

// snapshotBytes builds the canonical fixture target (a Holder with
// Count = 42 and Name = "x" kept alive by one static root) and
// serializes it through the snapshot writer.
func snapshotBytes(t *testing.T) []byte {
	t.Helper()
	tgt := memtarget.New(target.ArchAMD64)
	tgt.AddModule(target.Module{Path: "MyApp.dll", Base: 0x7FF000000000, Size: 0x10000})

	tgt.AddRegion(heapBase, make([]byte, 0x1000))
	require.NoError(t, tgt.PutPointer(holderAddr, mtHolder))
	_, err := tgt.WriteMemory(holderAddr+8, []byte{42, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, tgt.PutPointer(holderAddr+16, strAddr))
	require.NoError(t, tgt.PutPointer(strAddr, mtString))
	_, err = tgt.WriteMemory(strAddr+8, []byte{1, 0, 0, 0})
	require.NoError(t, err)
	_, err = tgt.WriteMemory(strAddr+12, []byte{'x', 0})
	require.NoError(t, err)

	p := dac.NewMemProvider(dac.FlavorCore)
	p.AddSegment(dac.SegmentData{
		Start: heapBase, End: heapBase + 0x1000,
		Gen1Start: heapBase + 0x800, Gen0Start: heapBase + 0xC00,
		Ephemeral: true,
	})
	p.AddType(&dac.TypeData{MethodTable: mtHolder, Name: "MyApp.Holder", Module: "MyApp.dll", BaseSize: 48, ContainsPointers: true})
	p.AddType(&dac.TypeData{MethodTable: mtInt32, Name: "System.Int32", Module: "System.Private.CoreLib.dll", BaseSize: 24})
	p.AddType(&dac.TypeData{MethodTable: mtString, Name: "System.String", Module: "System.Private.CoreLib.dll", BaseSize: 22, ComponentSize: 2, IsString: true})
	p.SetFields(mtHolder, []dac.FieldData{
		{Name: "Count", Offset: 8, Kind: uint8(typesys.KindI4), FieldMethodTable: mtInt32},
		{Name: "Name", Offset: 16, Kind: uint8(typesys.KindString), FieldMethodTable: mtString},
	})
	p.AddRoot(dac.RootData{
		Kind: dac.RootStatic, Name: "static var MyApp.Holder.staticField",
		Address: 0x8000, Object: holderAddr,
	})

	var buf bytes.Buffer
	require.NoError(t, dumpfile.Write(&buf, tgt, p))
	return buf.Bytes()
}

func TestEndToEndSnapshot(t *testing.T) {
	session, err := clrlens.Open(bytes.NewReader(snapshotBytes(t)), nil, nil)
	require.NoError(t, err)

	roots, err := session.EnumerateObjects()
	require.NoError(t, err)
	require.Len(t, roots, 1)

	root := roots[0]
	assert.Equal(t, "staticField", root.Name)
	require.Len(t, root.Children, 2)

	count := root.Children[0]
	assert.Equal(t, "Count", count.Name)
	v, err := count.FormattedValue(false)
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	name := root.Children[1]
	assert.Equal(t, "Name", name.Name)
	v, err = name.FormattedValue(false)
	require.NoError(t, err)
	assert.Equal(t, `"x"`, v)
}

func TestEndToEndHeapWalk(t *testing.T) {
	session, err := clrlens.Open(bytes.NewReader(snapshotBytes(t)), nil, nil)
	require.NoError(t, err)

	heap, err := session.Heap()
	require.NoError(t, err)

	seg, found, err := heap.GetSegmentByAddress(holderAddr)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, seg.GetGeneration(holderAddr))

	typ, err := heap.GetObjectType(holderAddr)
	require.NoError(t, err)
	require.NotNil(t, typ)
	assert.Equal(t, "MyApp.Holder", typ.Name)

	byName, ok := session.Resolver().GetTypeByName("MyApp.Holder")
	require.True(t, ok)
	assert.Same(t, typ, byName)
}

func TestEndToEndRevisionInvalidation(t *testing.T) {
	session, err := clrlens.Open(bytes.NewReader(snapshotBytes(t)), nil, nil)
	require.NoError(t, err)

	heap, err := session.Heap()
	require.NoError(t, err)
	_, err = heap.Segments()
	require.NoError(t, err)

	// The target resumes: the old heap must fail loudly, a fresh heap
	// from the session must succeed.
	session.Reader().(*memtarget.Target).BumpRevision()

	_, err = heap.Segments()
	assert.ErrorIs(t, err, clrheap.ErrRevisionChanged)

	fresh, err := session.Heap()
	require.NoError(t, err)
	assert.NotSame(t, heap, fresh)
	segs, err := fresh.Segments()
	require.NoError(t, err)
	assert.Len(t, segs, 1)

	// Collection works again on the rebuilt state.
	roots, err := session.EnumerateObjects()
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}

func TestEndToEndJSONExport(t *testing.T) {
	session, err := clrlens.Open(bytes.NewReader(snapshotBytes(t)), nil, nil)
	require.NoError(t, err)
	roots, err := session.EnumerateObjects()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, objgraph.WriteJSON(&buf, roots, false))

	var decoded []struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Children []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"children"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "staticField", decoded[0].Name)
	assert.Equal(t, "MyApp.Holder", decoded[0].Type)
	require.Len(t, decoded[0].Children, 2)
	assert.Equal(t, "42", decoded[0].Children[0].Value)
	assert.Equal(t, `"x"`, decoded[0].Children[1].Value)
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, clrlens.Version)
}
