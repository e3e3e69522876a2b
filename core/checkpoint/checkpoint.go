// Package checkpoint persists a trained model as one atomic unit: the
// parameter tensors plus the metadata needed to rebuild a matching
// graph (dimensions and identity mapping). The on-disk format is
// versioned and checksummed so an incompatible or truncated file is
// rejected before any model state is reconstructed.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/adalundhe/cinesage/core/graph"
)

// Format: [magic:4][version:1][header_len:4][header:gob][params:gob][checksum:4]
const (
	serializationMagic   uint32 = 0x43494e45 // "CINE"
	serializationVersion uint8  = 1
)

var (
	ErrDataTooShort       = errors.New("checkpoint data too short")
	ErrInvalidMagic       = errors.New("invalid checkpoint magic number")
	ErrChecksumMismatch   = errors.New("checkpoint checksum mismatch")
	ErrUnsupportedVersion = errors.New("unsupported checkpoint version")

	// ErrShapeMismatch reports that checkpoint dimensions disagree with
	// a freshly built graph; truncating or padding would silently
	// corrupt predictions, so the mismatch is fatal.
	ErrShapeMismatch = errors.New("checkpoint dimensions do not match graph")

	// ErrMappingMismatch reports that the identity mapping rebuilt from
	// the raw tables differs from the one the checkpoint was trained
	// with, which would misalign every node index.
	ErrMappingMismatch = errors.New("checkpoint identity mapping does not match graph")
)

// Checkpoint is a persisted training run: final parameters plus the
// graph-reconstruction metadata. It is written once by the trainer and
// consumed read-only; a reload replaces it wholesale.
type Checkpoint struct {
	RunID string

	FeatureDim       int
	HiddenDim        int
	OutDim           int
	ExtraUserColumns int

	Mapping *graph.IdentityMapping

	// Params holds the model tensors in Model.Params order.
	Params [][]float32
}

type header struct {
	RunID            string
	FeatureDim       int
	HiddenDim        int
	OutDim           int
	ExtraUserColumns int
	Users            map[int64]int32
	Items            map[int64]int32
	UserOrder        []int64
	ItemOrder        []int64
}

// MarshalBinary serializes the checkpoint with a version-tagged header
// and a CRC32 trailer.
func (c *Checkpoint) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, serializationMagic); err != nil {
		return nil, fmt.Errorf("write magic: %w", err)
	}
	if err := buf.WriteByte(serializationVersion); err != nil {
		return nil, fmt.Errorf("write version: %w", err)
	}

	h := header{
		RunID:            c.RunID,
		FeatureDim:       c.FeatureDim,
		HiddenDim:        c.HiddenDim,
		OutDim:           c.OutDim,
		ExtraUserColumns: c.ExtraUserColumns,
		Users:            c.Mapping.Users,
		Items:            c.Mapping.Items,
		UserOrder:        c.Mapping.UserOrder,
		ItemOrder:        c.Mapping.ItemOrder,
	}
	var headerBuf bytes.Buffer
	if err := gob.NewEncoder(&headerBuf).Encode(h); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(headerBuf.Len())); err != nil {
		return nil, fmt.Errorf("write header length: %w", err)
	}
	if _, err := buf.Write(headerBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	if err := gob.NewEncoder(&buf).Encode(c.Params); err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	checksum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, checksum); err != nil {
		return nil, fmt.Errorf("write checksum: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary validates magic, checksum, and version before
// decoding anything, so corruption surfaces as a codec error rather
// than deep inside model reconstruction.
func (c *Checkpoint) UnmarshalBinary(data []byte) error {
	if len(data) < 13 { // magic(4) + version(1) + header_len(4) + checksum(4)
		return ErrDataTooShort
	}

	var magic uint32
	buf := bytes.NewReader(data)
	if err := binary.Read(buf, binary.LittleEndian, &magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if magic != serializationMagic {
		return ErrInvalidMagic
	}

	stored := binary.LittleEndian.Uint32(data[len(data)-4:])
	if stored != crc32.ChecksumIEEE(data[:len(data)-4]) {
		return ErrChecksumMismatch
	}

	version, err := buf.ReadByte()
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version != serializationVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, serializationVersion)
	}

	var headerLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &headerLen); err != nil {
		return fmt.Errorf("read header length: %w", err)
	}
	if len(data) < int(headerLen)+13 {
		return ErrDataTooShort
	}

	headerData := make([]byte, headerLen)
	if _, err := buf.Read(headerData); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	var h header
	if err := gob.NewDecoder(bytes.NewReader(headerData)).Decode(&h); err != nil {
		return fmt.Errorf("decode header: %w", err)
	}

	paramData := data[9+int(headerLen) : len(data)-4]
	var params [][]float32
	if err := gob.NewDecoder(bytes.NewReader(paramData)).Decode(&params); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	c.RunID = h.RunID
	c.FeatureDim = h.FeatureDim
	c.HiddenDim = h.HiddenDim
	c.OutDim = h.OutDim
	c.ExtraUserColumns = h.ExtraUserColumns
	c.Mapping = &graph.IdentityMapping{
		Users:     h.Users,
		Items:     h.Items,
		UserOrder: h.UserOrder,
		ItemOrder: h.ItemOrder,
	}
	c.Params = params
	return nil
}

// Save writes the checkpoint atomically: a temp file in the target
// directory is synced to disk and then renamed over path, so a crashed
// or interrupted write never leaves a loadable-but-partial file.
func Save(c *Checkpoint, path string) error {
	data, err := c.MarshalBinary()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ckpt-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}

// Load reads and validates a checkpoint file.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var c Checkpoint
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &c, nil
}
