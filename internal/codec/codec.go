// Package codec implements the binary encoding for a single cask log
// record. A record body is self-describing: given only its length, a
// reader can recover the timestamp, the key, and the value (or learn that
// the value is absent, meaning the record is a tombstone).
//
// Layout of an encoded body:
//
//	8 bytes   xxh3 checksum of everything that follows
//	8 bytes   timestamp, signed, little-endian, milliseconds since epoch
//	1 byte    flag: 0 = tombstone, 1 = value present
//	4 bytes   key length, little-endian
//	N bytes   key
//	4 bytes   value length, little-endian (present only when flag == 1)
//	M bytes   value (present only when flag == 1)
//
// The checksum lets the loader tell a corrupted-but-complete record apart
// from a torn tail: a short read is an io.ErrUnexpectedEOF, while a full
// read that fails its checksum is a genuine corruption.
package codec

import (
	"encoding/binary"
	stdErrors "errors"

	"github.com/zeebo/xxh3"

	"github.com/iamNilotpal/cask/pkg/errors"
)

const (
	checksumSize  = 8
	timestampSize = 8
	flagSize      = 1
	lenFieldSize  = 4

	flagTombstone byte = 0
	flagValue     byte = 1

	minBodySize = checksumSize + timestampSize + flagSize + lenFieldSize
)

// ErrRecordCorrupted is returned when a record's checksum does not match
// its content. The record was read in full (it is not a torn tail); its
// bytes were altered or it never was a valid record.
var ErrRecordCorrupted = stdErrors.New("record failed checksum verification")

// Record is the decoded form of a single log entry.
type Record struct {
	Timestamp int64
	Key       []byte
	Value     []byte // Decode leaves this nil for a tombstone and non-nil (possibly empty) for a set.
	Tombstone bool   // Encode writes a tombstone only when this is true; a nil Value alone encodes an empty set.
}

// Encode serializes r into a self-describing body suitable for appending
// to the log, prefixed elsewhere with its 8-byte length.
func Encode(r Record) []byte {
	valueLen := 0
	flag := flagTombstone
	if !r.Tombstone {
		flag = flagValue
		valueLen = len(r.Value)
	}

	payloadSize := timestampSize + flagSize + lenFieldSize + len(r.Key)
	if flag == flagValue {
		payloadSize += lenFieldSize + valueLen
	}

	buf := make([]byte, checksumSize+payloadSize)
	body := buf[checksumSize:]

	binary.LittleEndian.PutUint64(body[0:8], uint64(r.Timestamp))
	body[8] = flag
	binary.LittleEndian.PutUint32(body[9:13], uint32(len(r.Key)))
	offset := 13
	copy(body[offset:], r.Key)
	offset += len(r.Key)

	if flag == flagValue {
		binary.LittleEndian.PutUint32(body[offset:offset+4], uint32(valueLen))
		offset += 4
		copy(body[offset:], r.Value)
	}

	sum := xxh3.Hash(body)
	binary.LittleEndian.PutUint64(buf[0:8], sum)

	return buf
}

// Decode parses a body previously produced by Encode. Every failure (a
// body too short to decode, a checksum mismatch, a length field pointing
// past the buffer) is an errors.StorageError with ErrorCodeRecordCorrupted
// that wraps ErrRecordCorrupted.
func Decode(body []byte) (Record, error) {
	if len(body) < minBodySize {
		return Record{}, errors.NewStorageError(
			ErrRecordCorrupted, errors.ErrorCodeRecordCorrupted, "record body too short to decode",
		).WithDetail("bodyLen", len(body)).WithDetail("minBodyLen", minBodySize)
	}

	wantSum := binary.LittleEndian.Uint64(body[0:8])
	rest := body[checksumSize:]
	if gotSum := xxh3.Hash(rest); gotSum != wantSum {
		return Record{}, errors.NewStorageError(
			ErrRecordCorrupted, errors.ErrorCodeRecordCorrupted, "record checksum mismatch",
		).WithDetail("wantChecksum", wantSum).WithDetail("gotChecksum", gotSum)
	}

	timestamp := int64(binary.LittleEndian.Uint64(rest[0:8]))
	flag := rest[8]
	keyLen := binary.LittleEndian.Uint32(rest[9:13])

	offset := 13
	if uint32(len(rest)-offset) < keyLen {
		return Record{}, errors.NewStorageError(
			ErrRecordCorrupted, errors.ErrorCodeRecordCorrupted, "key length exceeds record body",
		).WithDetail("keyLen", keyLen)
	}
	key := make([]byte, keyLen)
	copy(key, rest[offset:offset+int(keyLen)])
	offset += int(keyLen)

	if flag == flagTombstone {
		return Record{Timestamp: timestamp, Key: key, Tombstone: true}, nil
	}

	if len(rest)-offset < lenFieldSize {
		return Record{}, errors.NewStorageError(
			ErrRecordCorrupted, errors.ErrorCodeRecordCorrupted, "missing value length field",
		)
	}
	valueLen := binary.LittleEndian.Uint32(rest[offset : offset+4])
	offset += 4

	if uint32(len(rest)-offset) < valueLen {
		return Record{}, errors.NewStorageError(
			ErrRecordCorrupted, errors.ErrorCodeRecordCorrupted, "value length exceeds record body",
		).WithDetail("valueLen", valueLen)
	}
	value := make([]byte, valueLen)
	copy(value, rest[offset:offset+int(valueLen)])

	return Record{Timestamp: timestamp, Key: key, Value: value}, nil
}
