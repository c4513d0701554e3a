package patchgraph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds the named tunables from spec.md §9. All fields default to
// the reference engine's compile-time defaults via DefaultConfig.
type Config struct {
	// AllowMultigraph permits parallel edges between the same two patches
	// instead of deduplicating with a linear scan on every add_depend.
	AllowMultigraph bool `json:"allow_multigraph"`

	// NRB enables the non-rollbackable patch optimization (§4.1, §4.3).
	NRB bool `json:"nrb"`

	// MergeRBsIntoNRB enables TryPromoteToNRB, which turns an existing
	// full-block rollback-holding BYTE patch into the block's NRB. Creating
	// an NRB does not rewrite the block's other rollbackable patches.
	MergeRBsIntoNRB bool `json:"merge_rbs_into_nrb"`

	// ByteMergeOverlap enables the simple single-overlap BYTE merge fast path.
	ByteMergeOverlap bool `json:"byte_merge_overlap"`

	// BitMergeOverlap enables merging a new BIT patch into a compatible
	// existing BIT patch at the same word offset.
	BitMergeOverlap bool `json:"bit_merge_overlap"`

	// Overlaps2 selects the batched overlap-discovery variant (§9): when a
	// range spans more than one fine bucket, the spanned buckets are
	// computed directly from its offsets and only those are scanned; when
	// off, every fine bucket the block has allocated is scanned instead.
	Overlaps2 bool `json:"overlaps_v2"`

	// SwapFullblockData rolls back a full-block BYTE patch by swapping the
	// underlying data slice instead of copying bytes.
	SwapFullblockData bool `json:"swap_fullblock_data"`

	// CycleCheck runs the debug DFS cycle check on every add_depend.
	CycleCheck bool `json:"cycle_check"`

	// Account enables the Stats counters (§11).
	Account bool `json:"account"`

	// RecursionLimit bounds the heap-backed frame stack used by level
	// propagation (spec.md §5, default 1024). The cycle guard's DFS keeps
	// its own growable stack and is not bounded by it.
	RecursionLimit int `json:"recursion_limit"`

	// Tracef, if non-nil, receives diagnostic traces from the cycle guard
	// (AddDependChecked's refusals). Callers wire this to their own logger; the package
	// never imports a logging framework (see DESIGN.md).
	Tracef func(format string, args ...any) `json:"-"`
}

// DefaultConfig returns the reference engine's defaults: multigraph, NRB,
// and simple overlap merging on; cycle-check and accounting off.
func DefaultConfig() Config {
	return Config{
		AllowMultigraph:   true,
		NRB:               true,
		MergeRBsIntoNRB:   true,
		ByteMergeOverlap:  true,
		BitMergeOverlap:   true,
		Overlaps2:         true,
		SwapFullblockData: false,
		CycleCheck:        false,
		Account:           false,
		RecursionLimit:    1024,
	}
}

// LoadConfig reads tunables from a JSON-with-comments file (hujson, the
// same format the teacher's config.go loads for .tkrc) layered over
// DefaultConfig. Unset fields in the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := json.Unmarshal(std, &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = DefaultConfig().RecursionLimit
	}

	return cfg, nil
}

func (c Config) tracef(format string, args ...any) {
	if c.Tracef != nil {
		c.Tracef(format, args...)
	}
}
