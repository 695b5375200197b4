package convert_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cachesim/cachesim/internal/config"
	"github.com/cachesim/cachesim/internal/trace"
	"github.com/cachesim/cachesim/internal/trace/convert"
)

func writeCSVFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func readOracleGeneral(t *testing.T, path string) []int64 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read converted output: %v", err)
	}
	if len(data)%trace.OracleGeneralItemSize != 0 {
		t.Fatalf("converted output size %d not a multiple of %d", len(data), trace.OracleGeneralItemSize)
	}
	n := len(data) / trace.OracleGeneralItemSize
	next := make([]int64, n)
	for i := 0; i < n; i++ {
		rec := data[i*trace.OracleGeneralItemSize : (i+1)*trace.OracleGeneralItemSize]
		next[i] = int64(binary.LittleEndian.Uint64(rec[16:24]))
	}
	return next
}

// TestOracleGeneral_NextAccessVtime exercises the worked example: requests
// for objects A,B,A,C,B in that order. A's next occurrence is at step 2,
// B's is at step 4, and the remaining three requests are never seen again.
func TestOracleGeneral_NextAccessVtime(t *testing.T) {
	t.Parallel()

	path := writeCSVFixture(t, "1,1,10\n2,2,10\n3,1,10\n4,3,10\n5,2,10\n")
	cfg := config.TraceConfig{
		Path: path, Format: "csv",
		TimeCol: 1, ObjIDCol: 2, ObjSizeCol: 3,
		ObjIDIsNum: true, Delimiter: ",",
	}
	r, err := trace.Open(cfg, nil, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()

	outPath := filepath.Join(t.TempDir(), "out.oraclegeneral")
	if err := convert.OracleGeneral(r, outPath); err != nil {
		t.Fatalf("OracleGeneral() error = %v", err)
	}

	got := readOracleGeneral(t, outPath)
	want := []int64{2, 4, -1, -1, -1}
	if len(got) != len(want) {
		t.Fatalf("record count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("next_access_vtime[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
