package trace

import (
	"fmt"
	"path/filepath"
	"strings"

	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// Format identifies a trace file's on-disk layout (spec §4.B).
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatText
	FormatBinary // generic fixed-layout binary, described by a format string
	FormatVSCSI
	FormatTwitterCache
	FormatTwitterCacheNS
	FormatOracleGeneral
	FormatOracleSysTwrNS
	FormatValpin
	FormatLCS
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatText:
		return "txt"
	case FormatBinary:
		return "binary"
	case FormatVSCSI:
		return "vscsi"
	case FormatTwitterCache:
		return "twitter"
	case FormatTwitterCacheNS:
		return "twitter-ns"
	case FormatOracleGeneral:
		return "oracle-general"
	case FormatOracleSysTwrNS:
		return "oracle-sys-twrns"
	case FormatValpin:
		return "valpin"
	case FormatLCS:
		return "lcs"
	default:
		return "unknown"
	}
}

func (f Format) isText() bool {
	return f == FormatCSV || f == FormatText
}

var suffixFormats = map[string]Format{
	".csv":            FormatCSV,
	".txt":            FormatText,
	".vscsi":          FormatVSCSI,
	".twitter":        FormatTwitterCache,
	".twitterns":      FormatTwitterCacheNS,
	".oraclegeneral":  FormatOracleGeneral,
	".oraclesystwrns": FormatOracleSysTwrNS,
	".valpin":         FormatValpin,
	".lcs":            FormatLCS,
}

var nameFormats = map[string]Format{
	"csv":              FormatCSV,
	"txt":              FormatText,
	"text":             FormatText,
	"binary":           FormatBinary,
	"vscsi":            FormatVSCSI,
	"twitter":          FormatTwitterCache,
	"twitter-cache":    FormatTwitterCache,
	"twitter-ns":       FormatTwitterCacheNS,
	"twitter-cache-ns": FormatTwitterCacheNS,
	"oracle-general":   FormatOracleGeneral,
	"oracle-sys-twrns": FormatOracleSysTwrNS,
	"valpin":           FormatValpin,
	"lcs":              FormatLCS,
}

// DetectFormat resolves a trace's format: an explicitly declared name takes
// priority (spec §4.B: "otherwise the layout must be declared"), falling
// back to a recognized path suffix.
func DetectFormat(path, declared string) (Format, error) {
	if declared != "" {
		f, ok := nameFormats[strings.ToLower(strings.TrimSpace(declared))]
		if !ok {
			return FormatUnknown, simerr.NewError(simerr.ErrCodeConfigInvalid, "unrecognized trace format").
				WithComponent("trace").WithDetail("format", declared)
		}
		return f, nil
	}

	ext := strings.ToLower(strings.ReplaceAll(filepath.Ext(path), ".", ""))
	if f, ok := suffixFormats["."+ext]; ok {
		return f, nil
	}
	return FormatUnknown, simerr.NewError(simerr.ErrCodeConfigInvalid, "trace format not declared and suffix not recognized").
		WithComponent("trace").WithDetail("path", path)
}

// fieldKind is the scalar type of one binary record field.
type fieldKind int

const (
	kindU8 fieldKind = iota
	kindU16
	kindU32
	kindU64
	kindI8
	kindI16
	kindI32
	kindI64
)

func (k fieldKind) width() int64 {
	switch k {
	case kindU8, kindI8:
		return 1
	case kindU16, kindI16:
		return 2
	case kindU32, kindI32:
		return 4
	case kindU64, kindI64:
		return 8
	default:
		return 0
	}
}

// binaryField is one field of a generic fixed-layout binary record: a role
// (which Request attribute it fills) at a byte offset with a scalar kind.
type binaryField struct {
	role   string
	kind   fieldKind
	offset int64
}

// BinaryLayout is a fully resolved fixed-width binary record shape:
// total item size plus an ordered field list. Used to decode trace
// records; the oracle-general encoder used by internal/trace/convert
// (EncodeOracleGeneral) writes its fixed layout directly, not through a
// BinaryLayout.
type BinaryLayout struct {
	ItemSize int64
	Fields   []binaryField
}

var kindNames = map[string]fieldKind{
	"u8": kindU8, "u16": kindU16, "u32": kindU32, "u64": kindU64,
	"i8": kindI8, "i16": kindI16, "i32": kindI32, "i64": kindI64,
}

// parseBinaryFormat parses the printf-style width/type format string from
// spec §4.B/§6: a comma-separated list of "role:kind" tokens in on-disk
// field order, e.g. "time:u32,obj_id:u64,size:u32,next_access_vtime:i64".
// Recognized roles: time, obj_id, size, next_access_vtime, op, tenant, ttl.
func parseBinaryFormat(s string) (BinaryLayout, error) {
	var layout BinaryLayout
	var offset int64

	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		parts := strings.SplitN(tok, ":", 2)
		if len(parts) != 2 {
			return layout, fmt.Errorf("malformed binary format token %q", tok)
		}
		role := strings.TrimSpace(parts[0])
		kind, ok := kindNames[strings.ToLower(strings.TrimSpace(parts[1]))]
		if !ok {
			return layout, fmt.Errorf("unknown binary field kind %q", parts[1])
		}
		layout.Fields = append(layout.Fields, binaryField{role: role, kind: kind, offset: offset})
		offset += kind.width()
	}
	if len(layout.Fields) == 0 {
		return layout, fmt.Errorf("empty binary format string")
	}
	layout.ItemSize = offset
	return layout, nil
}

// OracleGeneralItemSize is the fixed record size of the oracle-general
// binary layout (spec §6): 24 bytes, no padding.
const OracleGeneralItemSize = 24

// OracleGeneralFormat is the exact byte-for-byte layout from spec §6:
// packed little-endian {uint32 clock_time, uint64 obj_id, uint32 obj_size,
// int64 next_access_vtime}, 24 bytes, no padding, no header.
const OracleGeneralFormat = "time:u32,obj_id:u64,size:u32,next_access_vtime:i64"

// Preset format strings for the purpose-built binary layouts named in spec
// §4.B beyond oracle-general. Spec §6 gives an exact byte shape only for
// oracle-general; these presets are reasonable fixed-width reconstructions
// of the field sets the spec's glossary and §4.B text describe (time,
// object id, size, and, where the format is inherently an oracle trace,
// next_access_vtime) — see DESIGN.md for why a byte-exact spec wasn't
// available for them in this retrieval pack.
var presetFormats = map[Format]string{
	FormatVSCSI:          "time:u32,obj_id:u64,size:u32",
	FormatTwitterCache:   "time:u32,obj_id:u64,size:u32,op:u8",
	FormatTwitterCacheNS: "time:u32,obj_id:u64,size:u32,op:u8,tenant:u32",
	FormatOracleGeneral:  OracleGeneralFormat,
	FormatOracleSysTwrNS: "time:u32,obj_id:u64,size:u32,next_access_vtime:i64,tenant:u32",
	FormatValpin:         "time:u32,obj_id:u64,size:u32",
	FormatLCS:            "time:u32,obj_id:u64,size:u32,next_access_vtime:i64",
}

// resolveBinaryLayout returns the layout for a binary trace format: the
// preset for a purpose-built layout, or a parse of the declared format
// string for FormatBinary.
func resolveBinaryLayout(f Format, declaredFormat string) (BinaryLayout, error) {
	if f == FormatBinary {
		if declaredFormat == "" {
			return BinaryLayout{}, simerr.NewError(simerr.ErrCodeConfigInvalid, "binary trace requires a format string").
				WithComponent("trace")
		}
		layout, err := parseBinaryFormat(declaredFormat)
		if err != nil {
			return layout, simerr.NewError(simerr.ErrCodeConfigInvalid, "invalid binary format string").
				WithComponent("trace").WithCause(err).WithDetail("format", declaredFormat)
		}
		return layout, nil
	}

	preset, ok := presetFormats[f]
	if !ok {
		return BinaryLayout{}, simerr.NewError(simerr.ErrCodeConfigInvalid, "no binary layout for format").
			WithComponent("trace").WithDetail("format", f.String())
	}
	layout, err := parseBinaryFormat(preset)
	if err != nil {
		// Presets are fixed at compile time and always parse; this would
		// be a programming error, not a config error.
		panic(fmt.Sprintf("trace: invalid builtin preset for %s: %v", f, err))
	}
	return layout, nil
}
