package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeSafetensors creates a minimal safetensors file for testing. Tensor data
// for each entry is filled with ascending f32 values.
func writeSafetensors(t *testing.T, path string, tensors map[string]tensorHeader) {
	t.Helper()
	headerBytes, err := json.Marshal(tensors)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		t.Fatalf("write header len: %v", err)
	}
	if _, err := f.Write(headerBytes); err != nil {
		t.Fatalf("write header: %v", err)
	}

	var maxEnd int64
	for _, th := range tensors {
		if len(th.DataOffsets) == 2 && th.DataOffsets[1] > maxEnd {
			maxEnd = th.DataOffsets[1]
		}
	}
	data := make([]byte, maxEnd)
	for i := int64(0); i*4+4 <= maxEnd; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(i)))
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write data: %v", err)
	}
}

func TestOpenAndReadF32(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.safetensors")

	writeSafetensors(t, path, map[string]tensorHeader{
		"weight": {
			DType:       "F32",
			Shape:       []int{2, 3},
			DataOffsets: []int64{0, 24},
		},
	})

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	info, ok := f.Tensor("weight")
	if !ok {
		t.Fatal("tensor 'weight' not found")
	}
	if info.DType != "F32" {
		t.Fatalf("expected dtype F32, got %q", info.DType)
	}
	if len(info.Shape) != 2 || info.Shape[0] != 2 || info.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", info.Shape)
	}

	data, _, err := f.ReadTensorF32("weight")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if len(data) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(data))
	}
	for i, v := range data {
		if v != float32(i) {
			t.Fatalf("data[%d]: got %f, want %d", i, v, i)
		}
	}
}

func TestReadMissingTensor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.safetensors")
	writeSafetensors(t, path, map[string]tensorHeader{
		"weight": {DType: "F32", Shape: []int{1}, DataOffsets: []int64{0, 4}},
	})

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if _, _, err := f.ReadTensorF32("nope"); err == nil {
		t.Fatal("expected error for missing tensor")
	}
}

func TestOpenNonexistentFile(t *testing.T) {
	t.Parallel()
	if _, err := Open("/nonexistent/file.safetensors"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestOpenTruncatedFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.safetensors")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestOpenHeaderLengthOutOfRange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.safetensors")
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], 1<<40)
	if err := os.WriteFile(path, buf[:], 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for oversized header length")
	}
}
