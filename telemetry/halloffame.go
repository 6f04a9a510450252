package telemetry

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/pthm-cable/racer/neural"
)

// HallEntry is an archived policy and the return it earned.
type HallEntry struct {
	Generation int               `json:"generation"`
	Return     float64           `json:"return"`
	Checkpoint neural.Checkpoint `json:"checkpoint"`
}

// HallOfFame keeps the top-K policies seen during training, sorted by
// return, for reseeding after a collapse and for later inspection.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
	rng     *rand.Rand
}

// NewHallOfFame creates a new hall of fame with the given capacity.
func NewHallOfFame(maxSize int, rng *rand.Rand) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{
		entries: make([]HallEntry, 0, maxSize),
		maxSize: maxSize,
		rng:     rng,
	}
}

// Consider offers a policy for entry. Returns true if it was added.
func (hof *HallOfFame) Consider(generation int, ret float64, p *neural.Policy) bool {
	n := len(hof.entries)
	if n >= hof.maxSize && ret <= hof.entries[n-1].Return {
		return false
	}
	hof.entries = hof.insertEntry(hof.entries, HallEntry{
		Generation: generation,
		Return:     ret,
		Checkpoint: p.Checkpoint(),
	})
	return true
}

// insertEntry adds an entry to the hall, maintaining sorted order by return.
// If the hall is full, the lowest-return entry is removed.
func (hof *HallOfFame) insertEntry(hall []HallEntry, entry HallEntry) []HallEntry {
	// Find insertion point (sorted descending by return)
	idx := sort.Search(len(hall), func(i int) bool {
		return hall[i].Return < entry.Return
	})

	if len(hall) >= hof.maxSize && idx >= hof.maxSize {
		return hall
	}

	hall = append(hall, HallEntry{})
	copy(hall[idx+1:], hall[idx:])
	hall[idx] = entry

	if len(hall) > hof.maxSize {
		hall = hall[:hof.maxSize]
	}

	return hall
}

// Sample selects an entry using tournament selection.
// Returns nil if the hall is empty.
func (hof *HallOfFame) Sample() *HallEntry {
	if len(hof.entries) == 0 {
		return nil
	}

	const tournamentSize = 3
	var best *HallEntry

	for i := 0; i < tournamentSize && i < len(hof.entries); i++ {
		candidate := &hof.entries[hof.rng.Intn(len(hof.entries))]
		if best == nil || candidate.Return > best.Return {
			best = candidate
		}
	}

	entryCopy := *best
	entryCopy.Checkpoint.Weights = append([]float64(nil), best.Checkpoint.Weights...)
	return &entryCopy
}

// Size returns the number of entries.
func (hof *HallOfFame) Size() int {
	return len(hof.entries)
}

// Entries returns the archived entries, best first. The slice must not be
// modified.
func (hof *HallOfFame) Entries() []HallEntry {
	return hof.entries
}

// TopReturn returns the highest archived return, or 0 if the hall is empty.
func (hof *HallOfFame) TopReturn() float64 {
	if len(hof.entries) == 0 {
		return 0
	}
	return hof.entries[0].Return
}

// MarshalJSON serializes the hall of fame to JSON.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(struct {
		MaxSize int         `json:"max_size"`
		Entries []HallEntry `json:"entries"`
	}{hof.maxSize, hof.entries}, "", "  ")
}

// LoadHallOfFameFromFile reads a hall of fame JSON file written by
// OutputManager.WriteHallOfFame.
func LoadHallOfFameFromFile(path string, rng *rand.Rand) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var raw struct {
		MaxSize int         `json:"max_size"`
		Entries []HallEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	maxSize := max(raw.MaxSize, len(raw.Entries))
	hof := NewHallOfFame(maxSize, rng)
	for _, e := range raw.Entries {
		hof.entries = hof.insertEntry(hof.entries, e)
	}
	return hof, nil
}
