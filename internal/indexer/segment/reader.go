package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// ErrCorrupt is returned when a blob fails structural or checksum checks.
var ErrCorrupt = errors.New("corrupt segment")

// ReadHeader parses the fixed header of an encoded segment.
func ReadHeader(data []byte) (SegmentHeader, error) {
	if len(data) < HeaderSize+FooterSize {
		return SegmentHeader{}, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(data))
	}
	h := data[:HeaderSize]
	header := SegmentHeader{
		Magic:       binary.LittleEndian.Uint32(h[0:4]),
		Version:     binary.LittleEndian.Uint32(h[4:8]),
		TermCount:   binary.LittleEndian.Uint32(h[8:12]),
		DocCount:    binary.LittleEndian.Uint32(h[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(h[16:24])),
		DictOffset:  int64(binary.LittleEndian.Uint64(h[24:32])),
		DictSize:    int64(binary.LittleEndian.Uint64(h[32:40])),
		PostOffset:  int64(binary.LittleEndian.Uint64(h[40:48])),
		PostSize:    int64(binary.LittleEndian.Uint64(h[48:56])),
		Compression: Compression(h[56]),
	}
	if header.Magic != MagicBytes {
		return header, fmt.Errorf("%w: bad magic bytes %x", ErrCorrupt, header.Magic)
	}
	if header.Version != FormatVersion {
		return header, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header.Version)
	}
	return header, nil
}

// Decode parses a blob produced by Encode. numFields must match the schema
// the segment was written with.
func Decode(name string, data []byte, numFields int) (*Segment, error) {
	header, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[:len(data)-FooterSize]
	footer := data[len(data)-FooterSize:]
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(body) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if n := int(binary.LittleEndian.Uint32(footer[4:8])); n != numFields {
		return nil, fmt.Errorf("%w: segment has %d fields, schema has %d", ErrCorrupt, n, numFields)
	}
	storedOffset := int64(binary.LittleEndian.Uint64(footer[8:16]))
	storedSize := int64(binary.LittleEndian.Uint64(footer[16:24]))

	if !inBounds(body, header.PostOffset, header.PostSize) ||
		!inBounds(body, header.DictOffset, header.DictSize) ||
		!inBounds(body, storedOffset, storedSize) {
		return nil, fmt.Errorf("%w: section out of bounds", ErrCorrupt)
	}

	var dict []DictEntry
	if err := json.Unmarshal(body[header.DictOffset:header.DictOffset+header.DictSize], &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if len(dict) != int(header.TermCount) {
		return nil, fmt.Errorf("%w: dictionary has %d terms, header says %d", ErrCorrupt, len(dict), header.TermCount)
	}

	fields := make([]fieldIndex, numFields)
	for i := range fields {
		fields[i].lengths = make(map[uint64]uint32)
	}
	postings := body[header.PostOffset : header.PostOffset+header.PostSize]
	for _, entry := range dict {
		if entry.Field < 0 || entry.Field >= numFields {
			return nil, fmt.Errorf("%w: term %q has field %d", ErrCorrupt, entry.Term, entry.Field)
		}
		if !inBounds(postings, entry.PostOffset, int64(entry.PostLen)) {
			return nil, fmt.Errorf("%w: postings for %q out of bounds", ErrCorrupt, entry.Term)
		}
		list, err := decodePostings(postings[entry.PostOffset : entry.PostOffset+int64(entry.PostLen)])
		if err != nil {
			return nil, fmt.Errorf("postings for term %q: %w", entry.Term, err)
		}
		fields[entry.Field].terms = append(fields[entry.Field].terms, index.TermEntry{
			Term:     entry.Term,
			Postings: list,
		})
	}

	storedData, err := decompressBlock(body[storedOffset:storedOffset+storedSize], header.Compression)
	if err != nil {
		return nil, fmt.Errorf("stored fields: %w", err)
	}
	var records []storedRecord
	if err := json.Unmarshal(storedData, &records); err != nil {
		return nil, fmt.Errorf("parsing stored fields: %w", err)
	}
	if len(records) != int(header.DocCount) {
		return nil, fmt.Errorf("%w: %d stored docs, header says %d", ErrCorrupt, len(records), header.DocCount)
	}
	docs := roaring64.New()
	stored := make(map[uint64]index.StoredDoc, len(records))
	for _, rec := range records {
		docs.Add(rec.ID)
		if rec.Fields == nil {
			rec.Fields = make(index.StoredDoc)
		}
		stored[rec.ID] = rec.Fields
		for fid, l := range rec.Lengths {
			if fid >= numFields || l == 0 {
				continue
			}
			fields[fid].lengths[rec.ID] = l
			fields[fid].totalLen += uint64(l)
		}
	}

	return &Segment{
		name:   name,
		docs:   docs,
		fields: fields,
		stored: stored,
	}, nil
}

func decodePostings(data []byte) (index.PostingList, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, ErrCorrupt
	}
	data = data[n:]
	list := make(index.PostingList, 0, count)
	var prev uint64
	for i := uint64(0); i < count; i++ {
		delta, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, ErrCorrupt
		}
		data = data[n:]
		freq, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, ErrCorrupt
		}
		data = data[n:]
		prev += delta
		list = append(list, index.Posting{DocID: prev, Frequency: uint32(freq)})
	}
	return list, nil
}

func inBounds(data []byte, offset, size int64) bool {
	return offset >= 0 && size >= 0 && offset+size <= int64(len(data))
}
