package trace_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cachesim/cachesim/internal/config"
	"github.com/cachesim/cachesim/internal/trace"
	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// oracleGeneralRecord packs one 24-byte oracle-general record per spec §6.
func oracleGeneralRecord(clockTime uint32, objID uint64, objSize uint32, nextAccess int64) []byte {
	rec := make([]byte, 24)
	binary.LittleEndian.PutUint32(rec[0:4], clockTime)
	binary.LittleEndian.PutUint64(rec[4:12], objID)
	binary.LittleEndian.PutUint32(rec[12:16], objSize)
	binary.LittleEndian.PutUint64(rec[16:24], uint64(nextAccess))
	return rec
}

func writeBinaryFixture(t *testing.T, records ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.oraclegeneral")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	defer f.Close()
	for _, rec := range records {
		if _, err := f.Write(rec); err != nil {
			t.Fatalf("failed to write fixture record: %v", err)
		}
	}
	return path
}

func TestReader_OracleGeneralBinaryRoundTrip(t *testing.T) {
	t.Parallel()

	path := writeBinaryFixture(t,
		oracleGeneralRecord(1, 10, 100, 2),
		oracleGeneralRecord(2, 20, 200, -1),
		oracleGeneralRecord(3, 30, 300, -1),
	)

	r, err := trace.Open(config.TraceConfig{Path: path, Format: "oracle-general"}, nil, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()

	req, err := r.ReadOne()
	if err != nil {
		t.Fatalf("ReadOne() error = %v", err)
	}
	if req.ObjID != 10 || req.ObjSize != 100 || req.NextAccessVtime != 2 {
		t.Errorf("req = %+v, want obj_id=10 obj_size=100 next_access_vtime=2", req)
	}

	if err := r.GoBackOne(); err != nil {
		t.Fatalf("GoBackOne() error = %v", err)
	}
	again, err := r.ReadOne()
	if err != nil {
		t.Fatalf("ReadOne() after GoBackOne() error = %v", err)
	}
	if again != req {
		t.Errorf("read_one(); go_back_one(); read_one() = %+v, want %+v", again, req)
	}
}

func TestReader_OracleGeneralCountIsConstantTime(t *testing.T) {
	t.Parallel()

	path := writeBinaryFixture(t,
		oracleGeneralRecord(1, 10, 100, -1),
		oracleGeneralRecord(2, 20, 200, -1),
	)

	r, err := trace.Open(config.TraceConfig{Path: path, Format: "oracle-general"}, nil, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()

	n, err := r.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestReader_OracleGeneralCloneSharesMapping(t *testing.T) {
	t.Parallel()

	path := writeBinaryFixture(t,
		oracleGeneralRecord(1, 10, 100, -1),
		oracleGeneralRecord(2, 20, 200, -1),
	)

	r, err := trace.Open(config.TraceConfig{Path: path, Format: "oracle-general"}, nil, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()

	if _, err := r.ReadOne(); err != nil {
		t.Fatalf("ReadOne() error = %v", err)
	}

	clone, err := r.Clone()
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	defer clone.Close()

	req, err := clone.ReadOne()
	if err != nil {
		t.Fatalf("Clone().ReadOne() error = %v", err)
	}
	if req.ObjID != 10 {
		t.Errorf("clone obj_id = %d, want 10 (clone starts at its own beginning)", req.ObjID)
	}

	// Closing the original must not invalidate the clone's shared mapping.
	if err := r.Close(); err != nil {
		t.Fatalf("r.Close() error = %v", err)
	}
	if _, err := clone.ReadOne(); err != nil {
		t.Errorf("clone.ReadOne() after original Close() error = %v, want nil", err)
	}
}

func TestReader_UnrecognizedFormatIsConfigInvalid(t *testing.T) {
	t.Parallel()

	_, err := trace.Open(config.TraceConfig{Path: "/nonexistent.xyz"}, nil, nil)
	if err == nil {
		t.Fatal("Open() with unrecognized suffix and no declared format = nil error")
	}
}

func TestReader_GenericBinaryFormatString(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.bin")
	rec := make([]byte, 12)
	binary.LittleEndian.PutUint32(rec[0:4], 7)
	binary.LittleEndian.PutUint64(rec[4:12], 42)
	if err := os.WriteFile(path, rec, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg := config.TraceConfig{Path: path, Format: "binary", BinaryFormat: "time:u32,obj_id:u64"}
	r, err := trace.Open(cfg, nil, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()

	req, err := r.ReadOne()
	if err != nil {
		t.Fatalf("ReadOne() error = %v", err)
	}
	if req.ObjID != 42 {
		t.Errorf("obj_id = %d, want 42", req.ObjID)
	}

	if _, err := r.ReadOne(); !simerr.IsEndOfStream(err) {
		t.Errorf("ReadOne() past single record = %v, want EndOfStream", err)
	}
}
