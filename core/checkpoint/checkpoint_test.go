package checkpoint

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/adalundhe/cinesage/core/graph"
)

func testCheckpoint() *Checkpoint {
	return &Checkpoint{
		RunID:            "run-1234",
		FeatureDim:       6,
		HiddenDim:        8,
		OutDim:           4,
		ExtraUserColumns: 2,
		Mapping: &graph.IdentityMapping{
			Users:     map[int64]int32{10: 0, 20: 1},
			Items:     map[int64]int32{100: 2, 200: 3},
			UserOrder: []int64{10, 20},
			ItemOrder: []int64{100, 200},
		},
		Params: [][]float32{
			{0.1, 0.2, 0.3},
			{-1.5, 2.25},
		},
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	orig := testCheckpoint()
	data, err := orig.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got Checkpoint
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if got.RunID != orig.RunID {
		t.Errorf("run id %q, want %q", got.RunID, orig.RunID)
	}
	if got.FeatureDim != 6 || got.HiddenDim != 8 || got.OutDim != 4 || got.ExtraUserColumns != 2 {
		t.Errorf("dims %d/%d/%d/%d changed in round trip",
			got.FeatureDim, got.HiddenDim, got.OutDim, got.ExtraUserColumns)
	}
	if !got.Mapping.Equal(orig.Mapping) {
		t.Error("mapping changed in round trip")
	}
	if len(got.Params) != len(orig.Params) {
		t.Fatalf("got %d tensors, want %d", len(got.Params), len(orig.Params))
	}
	for i := range orig.Params {
		for j := range orig.Params[i] {
			if got.Params[i][j] != orig.Params[i][j] {
				t.Errorf("param[%d][%d] = %v, want %v", i, j, got.Params[i][j], orig.Params[i][j])
			}
		}
	}
}

func TestUnmarshalRejectsCorruption(t *testing.T) {
	data, err := testCheckpoint().MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	t.Run("too short", func(t *testing.T) {
		var c Checkpoint
		if err := c.UnmarshalBinary(data[:5]); !errors.Is(err, ErrDataTooShort) {
			t.Fatalf("got %v, want ErrDataTooShort", err)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[0] ^= 0xff
		var c Checkpoint
		if err := c.UnmarshalBinary(corrupt); !errors.Is(err, ErrInvalidMagic) {
			t.Fatalf("got %v, want ErrInvalidMagic", err)
		}
	})

	t.Run("flipped payload byte", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[len(corrupt)/2] ^= 0xff
		var c Checkpoint
		if err := c.UnmarshalBinary(corrupt); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("got %v, want ErrChecksumMismatch", err)
		}
	})

	t.Run("future version", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[4] = 99 // version byte follows the 4-byte magic
		// Re-seal the checksum so the version check is what fires.
		sum := crc32.ChecksumIEEE(corrupt[:len(corrupt)-4])
		binary.LittleEndian.PutUint32(corrupt[len(corrupt)-4:], sum)
		var c Checkpoint
		if err := c.UnmarshalBinary(corrupt); !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("got %v, want ErrUnsupportedVersion", err)
		}
	})
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.ckpt")

	orig := testCheckpoint()
	if err := Save(orig, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != orig.RunID || !got.Mapping.Equal(orig.Mapping) {
		t.Error("loaded checkpoint differs from saved")
	}

	// The temp file used for the atomic rename must be gone.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("stray files after save: %v", names)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.ckpt")

	first := testCheckpoint()
	if err := Save(first, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := testCheckpoint()
	second.RunID = "run-5678"
	if err := Save(second, path); err != nil {
		t.Fatalf("Save over existing: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != "run-5678" {
		t.Fatalf("loaded run id %q, want the replacement", got.RunID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.ckpt")); err == nil {
		t.Fatal("loading a missing file must fail")
	}
}
