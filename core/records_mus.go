// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS codecs for the stored records. Embeddings are not part of
// FragmentMUS; they are written separately with VectorMUS so similarity
// scans can read vectors without decoding fragments.
var (
	IDMUS       = idMUS{}
	ScopeMUS    = scopeMUS{}
	MetadataMUS = metadataMUS{}
	DocumentMUS = documentMUS{}
	FragmentMUS = fragmentMUS{}
	VectorMUS   = vectorMUS{}
)

// unmarshalField decodes one field at bs[*n:] into dst and advances n.
func unmarshalField[T any](unmarshal func([]byte) (T, int, error), bs []byte, n *int, dst *T) error {
	v, m, err := unmarshal(bs[*n:])
	*n += m
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// checkLength rejects a decoded element count that cannot fit in the
// remaining minSize-byte elements of bs.
func checkLength(length, minSize int, bs []byte) error {
	if length < 0 || length*minSize > len(bs) {
		return ErrMalformedRecord
	}
	return nil
}

type idMUS struct{}

func (idMUS) Size(id ID) int {
	return 2 * raw.Uint64.Size(0)
}

func (idMUS) Marshal(id ID, bs []byte) (n int) {
	n = raw.Uint64.Marshal(idHalf(id[:8]), bs)
	n += raw.Uint64.Marshal(idHalf(id[8:]), bs[n:])
	return n
}

func (idMUS) Unmarshal(bs []byte) (id ID, n int, err error) {
	var hi, lo uint64
	if err = unmarshalField(raw.Uint64.Unmarshal, bs, &n, &hi); err != nil {
		return
	}
	if err = unmarshalField(raw.Uint64.Unmarshal, bs, &n, &lo); err != nil {
		return
	}
	putIDHalf(id[:8], hi)
	putIDHalf(id[8:], lo)
	return id, n, nil
}

func idHalf(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func putIDHalf(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// Times are stored as Unix microseconds in UTC. Zero encodes the zero time.
func timeMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func sizeTime(t time.Time) int {
	return raw.Int64.Size(timeMicros(t))
}

func marshalTime(t time.Time, bs []byte) int {
	return raw.Int64.Marshal(timeMicros(t), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	us, n, err := raw.Int64.Unmarshal(bs)
	if err != nil || us == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

type scopeMUS struct{}

func (scopeMUS) Size(s Scope) int {
	return IDMUS.Size(s.RoomID) + IDMUS.Size(s.WorldID) + IDMUS.Size(s.EntityID)
}

func (scopeMUS) Marshal(s Scope, bs []byte) (n int) {
	n = IDMUS.Marshal(s.RoomID, bs)
	n += IDMUS.Marshal(s.WorldID, bs[n:])
	n += IDMUS.Marshal(s.EntityID, bs[n:])
	return n
}

func (scopeMUS) Unmarshal(bs []byte) (s Scope, n int, err error) {
	for _, dst := range []*ID{&s.RoomID, &s.WorldID, &s.EntityID} {
		if err = unmarshalField(IDMUS.Unmarshal, bs, &n, dst); err != nil {
			return
		}
	}
	return s, n, nil
}

type metadataMUS struct{}

func (metadataMUS) strings(m *Metadata) []*string {
	return []*string{&m.Source, &m.Filename, &m.ContentType, &m.Path, &m.Title, &m.FileExt, &m.FileType}
}

func (s metadataMUS) Size(m Metadata) (size int) {
	size = ord.String.Size(string(m.Kind))
	for _, f := range s.strings(&m) {
		size += ord.String.Size(*f)
	}
	size += varint.Int64.Size(m.FileSize)
	size += IDMUS.Size(m.DocumentID)
	size += varint.Int.Size(m.Position)
	size += sizeTime(m.Timestamp)
	size += varint.Int.Size(len(m.Extra))
	for k, v := range m.Extra {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size
}

func (s metadataMUS) Marshal(m Metadata, bs []byte) (n int) {
	n = ord.String.Marshal(string(m.Kind), bs)
	for _, f := range s.strings(&m) {
		n += ord.String.Marshal(*f, bs[n:])
	}
	n += varint.Int64.Marshal(m.FileSize, bs[n:])
	n += IDMUS.Marshal(m.DocumentID, bs[n:])
	n += varint.Int.Marshal(m.Position, bs[n:])
	n += marshalTime(m.Timestamp, bs[n:])
	n += varint.Int.Marshal(len(m.Extra), bs[n:])
	// Sorted keys keep the encoding deterministic
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(m.Extra[k], bs[n:])
	}
	return n
}

func (s metadataMUS) Unmarshal(bs []byte) (m Metadata, n int, err error) {
	var kind string
	if err = unmarshalField(ord.String.Unmarshal, bs, &n, &kind); err != nil {
		return
	}
	m.Kind = MemoryKind(kind)
	for _, f := range s.strings(&m) {
		if err = unmarshalField(ord.String.Unmarshal, bs, &n, f); err != nil {
			return
		}
	}
	if err = unmarshalField(varint.Int64.Unmarshal, bs, &n, &m.FileSize); err != nil {
		return
	}
	if err = unmarshalField(IDMUS.Unmarshal, bs, &n, &m.DocumentID); err != nil {
		return
	}
	if err = unmarshalField(varint.Int.Unmarshal, bs, &n, &m.Position); err != nil {
		return
	}
	if err = unmarshalField(unmarshalTime, bs, &n, &m.Timestamp); err != nil {
		return
	}
	var count int
	if err = unmarshalField(varint.Int.Unmarshal, bs, &n, &count); err != nil {
		return
	}
	if err = checkLength(count, 2, bs[n:]); err != nil {
		return
	}
	if count > 0 {
		m.Extra = make(map[string]string, count)
	}
	for range count {
		var k, v string
		if err = unmarshalField(ord.String.Unmarshal, bs, &n, &k); err != nil {
			return
		}
		if err = unmarshalField(ord.String.Unmarshal, bs, &n, &v); err != nil {
			return
		}
		m.Extra[k] = v
	}
	return m, n, nil
}

type documentMUS struct{}

func (documentMUS) Size(d Document) int {
	return IDMUS.Size(d.ID) +
		IDMUS.Size(d.AgentID) +
		ScopeMUS.Size(d.Scope) +
		ord.String.Size(d.Content) +
		MetadataMUS.Size(d.Metadata) +
		sizeTime(d.CreatedAt) +
		sizeTime(d.UpdatedAt)
}

func (documentMUS) Marshal(d Document, bs []byte) (n int) {
	n = IDMUS.Marshal(d.ID, bs)
	n += IDMUS.Marshal(d.AgentID, bs[n:])
	n += ScopeMUS.Marshal(d.Scope, bs[n:])
	n += ord.String.Marshal(d.Content, bs[n:])
	n += MetadataMUS.Marshal(d.Metadata, bs[n:])
	n += marshalTime(d.CreatedAt, bs[n:])
	n += marshalTime(d.UpdatedAt, bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (d Document, n int, err error) {
	if err = unmarshalField(IDMUS.Unmarshal, bs, &n, &d.ID); err != nil {
		return
	}
	if err = unmarshalField(IDMUS.Unmarshal, bs, &n, &d.AgentID); err != nil {
		return
	}
	if err = unmarshalField(ScopeMUS.Unmarshal, bs, &n, &d.Scope); err != nil {
		return
	}
	if err = unmarshalField(ord.String.Unmarshal, bs, &n, &d.Content); err != nil {
		return
	}
	if err = unmarshalField(MetadataMUS.Unmarshal, bs, &n, &d.Metadata); err != nil {
		return
	}
	if err = unmarshalField(unmarshalTime, bs, &n, &d.CreatedAt); err != nil {
		return
	}
	if err = unmarshalField(unmarshalTime, bs, &n, &d.UpdatedAt); err != nil {
		return
	}
	return d, n, nil
}

type fragmentMUS struct{}

func (fragmentMUS) Size(f Fragment) int {
	return IDMUS.Size(f.ID) +
		IDMUS.Size(f.AgentID) +
		IDMUS.Size(f.DocumentID) +
		varint.Int.Size(f.Position) +
		ScopeMUS.Size(f.Scope) +
		ord.String.Size(f.Content) +
		ord.String.Size(f.Context) +
		MetadataMUS.Size(f.Metadata) +
		sizeTime(f.CreatedAt) +
		sizeTime(f.UpdatedAt)
}

func (fragmentMUS) Marshal(f Fragment, bs []byte) (n int) {
	n = IDMUS.Marshal(f.ID, bs)
	n += IDMUS.Marshal(f.AgentID, bs[n:])
	n += IDMUS.Marshal(f.DocumentID, bs[n:])
	n += varint.Int.Marshal(f.Position, bs[n:])
	n += ScopeMUS.Marshal(f.Scope, bs[n:])
	n += ord.String.Marshal(f.Content, bs[n:])
	n += ord.String.Marshal(f.Context, bs[n:])
	n += MetadataMUS.Marshal(f.Metadata, bs[n:])
	n += marshalTime(f.CreatedAt, bs[n:])
	n += marshalTime(f.UpdatedAt, bs[n:])
	return n
}

func (fragmentMUS) Unmarshal(bs []byte) (f Fragment, n int, err error) {
	for _, dst := range []*ID{&f.ID, &f.AgentID, &f.DocumentID} {
		if err = unmarshalField(IDMUS.Unmarshal, bs, &n, dst); err != nil {
			return
		}
	}
	if err = unmarshalField(varint.Int.Unmarshal, bs, &n, &f.Position); err != nil {
		return
	}
	if err = unmarshalField(ScopeMUS.Unmarshal, bs, &n, &f.Scope); err != nil {
		return
	}
	if err = unmarshalField(ord.String.Unmarshal, bs, &n, &f.Content); err != nil {
		return
	}
	if err = unmarshalField(ord.String.Unmarshal, bs, &n, &f.Context); err != nil {
		return
	}
	if err = unmarshalField(MetadataMUS.Unmarshal, bs, &n, &f.Metadata); err != nil {
		return
	}
	if err = unmarshalField(unmarshalTime, bs, &n, &f.CreatedAt); err != nil {
		return
	}
	if err = unmarshalField(unmarshalTime, bs, &n, &f.UpdatedAt); err != nil {
		return
	}
	return f, n, nil
}

type vectorMUS struct{}

func (vectorMUS) Size(vec []float32) int {
	size := varint.Int.Size(len(vec))
	for _, v := range vec {
		size += raw.Float32.Size(v)
	}
	return size
}

func (vectorMUS) Marshal(vec []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(vec), bs)
	for _, v := range vec {
		n += raw.Float32.Marshal(v, bs[n:])
	}
	return n
}

func (vectorMUS) Unmarshal(bs []byte) (vec []float32, n int, err error) {
	var length int
	if err = unmarshalField(varint.Int.Unmarshal, bs, &n, &length); err != nil {
		return
	}
	if err = checkLength(length, raw.Float32.Size(0), bs[n:]); err != nil {
		return
	}
	vec = make([]float32, length)
	for i := range vec {
		if err = unmarshalField(raw.Float32.Unmarshal, bs, &n, &vec[i]); err != nil {
			return nil, n, err
		}
	}
	return vec, n, nil
}
