// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"time"
	"unsafe"
)

// fields is a cursor over a contiguous run of 32-bit or 64-bit fields
// inside a raw kernel record, as read off a ring buffer.
type fields []byte

// uint64 decodes the next 64 bit field into v.
func (f *fields) uint64(v *uint64) {
	*v = *(*uint64)(unsafe.Pointer(&(*f)[0]))
	f.advance(8)
}

// uint64Cond decodes the next 64 bit field into v, if cond is true.
func (f *fields) uint64Cond(cond bool, v *uint64) {
	if cond {
		f.uint64(v)
	}
}

// uint32 decodes a pair of uint32s into a and b.
func (f *fields) uint32(a, b *uint32) {
	*a = *(*uint32)(unsafe.Pointer(&(*f)[0]))
	*b = *(*uint32)(unsafe.Pointer(&(*f)[4]))
	f.advance(8)
}

// uint32Cond decodes a pair of uint32s into a and b, if cond is true.
func (f *fields) uint32Cond(cond bool, a, b *uint32) {
	if cond {
		f.uint32(a, b)
	}
}

// duration decodes a duration into d.
func (f *fields) duration(d *time.Duration) {
	*d = *(*time.Duration)(unsafe.Pointer(&(*f)[0]))
	f.advance(8)
}

// string decodes a null-terminated string into s. The null terminator
// is not included in the string written to s.
func (f *fields) string(s *string) {
	for i := 0; i < len(*f); i++ {
		if (*f)[i] == 0 {
			*s = string((*f)[:i])
			if i+1 <= len(*f) {
				f.advance(i + 1)
			}
			return
		}
	}
}

// uint64sizeBytes decodes a uint64-prefixed byte blob into b.
func (f *fields) uint64sizeBytes(b *[]byte) {
	var n uint64
	f.uint64(&n)
	*b = append([]byte(nil), (*f)[:n]...)
	f.advance(int(n))
}

// uint32sizeBytes decodes a uint32-prefixed byte blob into b.
func (f *fields) uint32sizeBytes(b *[]byte) {
	var n uint32
	*b = nil
	n = *(*uint32)(unsafe.Pointer(&(*f)[0]))
	f.advance(4)
	*b = append([]byte(nil), (*f)[:n]...)
	f.advance(int(n))
}

// id decodes a RecordID based on the EventAttr ev was configured with.
func (f *fields) id(id *RecordID, attr *EventAttr) {
	if !attr.Options.SampleIDAll {
		return
	}
	f.uint32Cond(attr.SampleFormat.Tid, &id.Pid, &id.Tid)
	f.uint64Cond(attr.SampleFormat.Time, &id.Time)
	f.uint64Cond(attr.SampleFormat.ID, &id.ID)
	f.uint64Cond(attr.SampleFormat.StreamID, &id.StreamID)
	f.uint32Cond(attr.SampleFormat.CPU, &id.CPU, &id.Res)
	f.uint64Cond(attr.SampleFormat.Identifier, &id.Identifier)
}

// count decodes a Count, according to attr.CountFormat.
func (f *fields) count(c *Count, attr *EventAttr) {
	f.uint64(&c.Value)
	var enabled, running uint64
	f.uint64Cond(attr.CountFormat.TotalTimeEnabled, &enabled)
	f.uint64Cond(attr.CountFormat.TotalTimeRunning, &running)
	c.TimeEnabled = time.Duration(enabled)
	c.TimeRunning = time.Duration(running)
	f.uint64Cond(attr.CountFormat.ID, &c.ID)
}

// groupCount decodes a GroupCount, according to attr.CountFormat.
func (f *fields) groupCount(gc *GroupCount, attr *EventAttr) {
	var nr, enabled, running uint64
	f.uint64(&nr)
	f.uint64Cond(attr.CountFormat.TotalTimeEnabled, &enabled)
	f.uint64Cond(attr.CountFormat.TotalTimeRunning, &running)
	gc.TimeEnabled = time.Duration(enabled)
	gc.TimeRunning = time.Duration(running)
	gc.Values = make([]struct {
		Value uint64
		ID    uint64
	}, nr)
	for i := range gc.Values {
		f.uint64(&gc.Values[i].Value)
		f.uint64Cond(attr.CountFormat.ID, &gc.Values[i].ID)
	}
}

// advance advances through the fields by n bytes.
func (f *fields) advance(n int) {
	*f = (*f)[n:]
}

// marshalBitwiseUint64 marshals a set of bitwise flags into a
// uint64, LSB first.
func marshalBitwiseUint64(fields []bool) uint64 {
	var res uint64
	for shift, set := range fields {
		if set {
			res |= 1 << uint(shift)
		}
	}
	return res
}
