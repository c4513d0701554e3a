package patchgraph

// Type distinguishes the three patch variants from spec.md §3.
type Type uint8

const (
	// TypeEmpty is a synthetic join/fork/collector patch with no block payload.
	TypeEmpty Type = iota
	// TypeByte changes a contiguous byte range on a block.
	TypeByte
	// TypeBit toggles a 32-bit word on a block via XOR/OR masks.
	TypeBit
)

func (t Type) String() string {
	switch t {
	case TypeEmpty:
		return "EMPTY"
	case TypeByte:
		return "BYTE"
	case TypeBit:
		return "BIT"
	default:
		return "UNKNOWN"
	}
}

// Flag is a bitmask of per-patch lifecycle and merge-state flags.
type Flag uint32

const (
	// FlagSafeAfter is set transiently while CreateByte or CreateBit builds
	// a patch or merges a write into one, permitting that patch to gain
	// befores; otherwise only an EMPTY patch with no afters may gain befores.
	FlagSafeAfter Flag = 1 << iota
	// FlagInFlight marks a patch whose write has been issued but not
	// acknowledged.
	FlagInFlight
	// FlagWritten marks a patch whose write has been acknowledged; it no
	// longer participates in the graph.
	FlagWritten
	// FlagRollback marks a BYTE patch whose block is currently rolled back
	// to isolate it for writeback (Rollback handles BYTE patches only).
	FlagRollback
	// FlagOverlap marks a patch that has been subsumed by a later overlapping
	// patch and removed from the overlap index.
	FlagOverlap
	// FlagFreeing guards destroy() against recursive re-entry via
	// remove_depend.
	FlagFreeing
	// FlagSetEmpty marks a transient EMPTY container patch: add_depend on it
	// as a before recurses into its own befores instead of depending on it
	// directly.
	FlagSetEmpty
	// FlagBitEmpty marks the per-word EMPTY collector patch that groups BIT
	// patches touching the same 32-bit word.
	FlagBitEmpty
	// FlagNoPatchgroup opts a patch out of higher-layer patchgroup membership.
	FlagNoPatchgroup
	// FlagFullOverlap marks a patch fully covered by a later overlapping
	// patch (implies FlagOverlap).
	FlagFullOverlap
	// FlagMarked is a scratch bit for callers; the engine never sets or
	// clears it.
	FlagMarked
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// Owner is the device a patch belongs to: the minimal capability the graph
// needs from the block layer below it (spec.md §6) to compute a patch's
// level. Concrete block devices (pkg/blockdev) implement a richer Device
// interface that embeds Owner.
type Owner interface {
	// Level returns the device's logical stacking depth.
	Level() int
	// GraphIndex returns a stable small integer identifying this device
	// instance, used only for diagnostics.
	GraphIndex() int
}

// levelNone is the sentinel "no applicable level" value (BDLEVEL_NONE in
// original_source), used for free-floating EMPTY patches with no
// outstanding befores.
const levelNone = -1

// Stats holds the optional patch, edge and merge counters enabled by Config.Account
// (spec.md §9's "account" tunable; see SPEC_FULL.md §11 for why this engine
// tracks exact counts rather than sampled cycle counts).
type Stats struct {
	LivePatches   [3]int // indexed by Type
	LiveEdges     int
	PoolHighWater int
	NPatchesTotal int64
	NEdgesTotal   int64
	NMerges       int64
	NConversions  int64 // rollback-buffer BYTE patches promoted to NRB
}
