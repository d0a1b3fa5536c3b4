package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/index"
)

// MagicBytes identifies an encoded segment blob.
const (
	MagicBytes    uint32 = 0x424B4D53
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// SegmentHeader is the 64-byte header at the start of every segment blob.
type SegmentHeader struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	DocCount    uint32
	CreatedAt   int64
	DictOffset  int64
	DictSize    int64
	PostOffset  int64
	PostSize    int64
	Compression Compression
}

// DictEntry maps a (field, term) pair to its postings within the postings
// section.
type DictEntry struct {
	Field      int    `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

type storedRecord struct {
	ID      uint64          `json:"id"`
	Fields  index.StoredDoc `json:"fields"`
	Lengths []uint32        `json:"len"`
}

// Encode serialises seg into a self-contained blob. Postings are delta coded
// varints; the stored-field block is compressed with c.
func Encode(seg *Segment, c Compression) ([]byte, error) {
	if seg.DocCount() == 0 {
		return nil, ErrEmptySegment
	}
	var buf bytes.Buffer
	buf.Write(make([]byte, HeaderSize))

	postingsStart := int64(buf.Len())
	dict := make([]DictEntry, 0, seg.TermCount())
	var scratch [binary.MaxVarintLen64]byte
	for fid, f := range seg.fields {
		for _, entry := range f.terms {
			offset := int64(buf.Len()) - postingsStart
			n := binary.PutUvarint(scratch[:], uint64(len(entry.Postings)))
			buf.Write(scratch[:n])
			var prev uint64
			for _, p := range entry.Postings {
				n = binary.PutUvarint(scratch[:], p.DocID-prev)
				buf.Write(scratch[:n])
				n = binary.PutUvarint(scratch[:], uint64(p.Frequency))
				buf.Write(scratch[:n])
				prev = p.DocID
			}
			dict = append(dict, DictEntry{
				Field:      fid,
				Term:       entry.Term,
				PostOffset: offset,
				PostLen:    int(int64(buf.Len()) - postingsStart - offset),
				DocFreq:    len(entry.Postings),
			})
		}
	}
	postingsSize := int64(buf.Len()) - postingsStart

	sort.SliceStable(dict, func(i, j int) bool {
		if dict[i].Field != dict[j].Field {
			return dict[i].Field < dict[j].Field
		}
		return dict[i].Term < dict[j].Term
	})
	dictStart := int64(buf.Len())
	dictData, err := json.Marshal(dict)
	if err != nil {
		return nil, fmt.Errorf("marshaling dictionary: %w", err)
	}
	buf.Write(dictData)
	dictSize := int64(len(dictData))

	records := make([]storedRecord, 0, seg.DocCount())
	seg.ForEachStored(func(docID uint64, doc index.StoredDoc) bool {
		lengths := make([]uint32, len(seg.fields))
		for fid := range seg.fields {
			lengths[fid] = seg.fields[fid].lengths[docID]
		}
		records = append(records, storedRecord{ID: docID, Fields: doc, Lengths: lengths})
		return true
	})
	storedData, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshaling stored fields: %w", err)
	}
	block, err := compressBlock(storedData, c)
	if err != nil {
		return nil, fmt.Errorf("compressing stored fields: %w", err)
	}
	storedStart := int64(buf.Len())
	buf.Write(block)

	out := buf.Bytes()
	header := out[:HeaderSize]
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(dict)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(seg.DocCount()))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(dictStart))
	binary.LittleEndian.PutUint64(header[32:40], uint64(dictSize))
	binary.LittleEndian.PutUint64(header[40:48], uint64(postingsStart))
	binary.LittleEndian.PutUint64(header[48:56], uint64(postingsSize))
	header[56] = byte(c)

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(out))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(seg.fields)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(storedStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(block)))
	return append(out, footer...), nil
}
