// ABOUTME: Binary snapshot format shared by the reader and writer
// ABOUTME: Tagged varint records with length-prefixed strings and blobs

// Package dumpfile reads and writes clrlens snapshot files: a
// self-contained capture of a paused target's memory regions plus the
// runtime metadata its DAC reported (segments, types, fields, roots).
// The format is record-oriented: a fixed magic header followed by
// varint-tagged records until EOF.
package dumpfile

// Magic is the 16-byte header every snapshot starts with.
const Magic = "clrlens snap v1\n"

// Record tags.
const (
	tagEOF     = 0
	tagParams  = 1
	tagModule  = 2
	tagRegion  = 3
	tagSegment = 4
	tagType    = 5
	tagFields  = 6
	tagRoot    = 7
)

// Segment flag bits.
const (
	segFlagEphemeral = 1 << 0
	segFlagLarge     = 1 << 1
)

// Type flag bits.
const (
	typeFlagArray            = 1 << 0
	typeFlagString           = 1 << 1
	typeFlagContainsPointers = 1 << 2
)

// Sanity caps: a corrupted length field must not drive a huge
// allocation.
const (
	maxStringLen = 1 << 20 // 1MB
	maxBlobLen   = 1 << 30 // 1GB
)
