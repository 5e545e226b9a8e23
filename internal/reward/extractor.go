// File: internal/reward/extractor.go
package reward

import (
	"math/rand"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/screen"
)

// patterns are evaluated in order, but every match is folded into one maximum.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\+\s?(\d+)`),
	regexp.MustCompile(`(\d+)\s*币`),
	regexp.MustCompile(`闲鱼币\s*(\d+)`),
}

// Extractor reads reward amounts from on-screen text.
type Extractor struct {
	min, max       int
	estMin, estMax int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewExtractor creates an extractor with the configured bounds.
func NewExtractor(cfg config.RewardConfig) *Extractor {
	return NewExtractorWithSource(cfg, rand.NewSource(time.Now().UnixNano()))
}

// NewExtractorWithSource is NewExtractor with a caller supplied random source.
func NewExtractorWithSource(cfg config.RewardConfig, src rand.Source) *Extractor {
	return &Extractor{
		min:    cfg.Min,
		max:    cfg.Max,
		estMin: cfg.EstimateMin,
		estMax: cfg.EstimateMax,
		rng:    rand.New(src),
	}
}

// Extract returns the largest amount found in the corpus. The result is
// unresolved when nothing matched or the maximum falls outside the bounds.
func (e *Extractor) Extract(corpus []string) (int, bool) {
	best, found := 0, false
	for _, text := range corpus {
		for _, re := range patterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					continue
				}
				if !found || n > best {
					best, found = n, true
				}
			}
		}
	}
	if !found || best < e.min || best > e.max {
		return 0, false
	}
	return best, true
}

// Estimate returns a small random stand-in amount. It exists for display
// continuity only and is never ground truth.
func (e *Extractor) Estimate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estMin + e.rng.Intn(e.estMax-e.estMin+1)
}

// Resolve extracts from the snapshot and falls back to an estimate.
func (e *Extractor) Resolve(snap *schemas.Snapshot) schemas.RewardEvent {
	if amount, ok := e.Extract(Corpus(snap)); ok {
		return schemas.RewardEvent{Amount: amount, Origin: schemas.RewardParsed}
	}
	return schemas.RewardEvent{Amount: e.Estimate(), Origin: schemas.RewardEstimated}
}

// Corpus returns every text and description visible in the snapshot.
func Corpus(snap *schemas.Snapshot) []string {
	return screen.Texts(snap)
}
