// File: internal/detect/extractor.go
package detect

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/screen"
)

// Extractor runs the detection pipeline: primary channels first, the fallback
// channel only when they found nothing, then a single merge and rank.
type Extractor struct {
	logger   *zap.Logger
	primary  []Channel
	fallback []Channel
	maxHops  int
}

// NewExtractor wires the keyword and spatial channels as primaries and OCR as
// the fallback.
func NewExtractor(logger *zap.Logger, cfg config.DetectionConfig, maxHops int) *Extractor {
	k := KeywordsFromConfig(cfg)
	return NewExtractorWithChannels(logger, maxHops,
		[]Channel{
			KeywordChannel(k),
			SpatialChannel(k, cfg.RightRegionRatio, cfg.MinSiblingTitleRunes),
		},
		[]Channel{
			OCRChannel(k, cfg.OCRMinLabelRunes, cfg.OCRMaxVerticalOffset, cfg.OCRHorizontalWeight),
		},
	)
}

// NewExtractorWithChannels builds an extractor from explicit channel lists.
func NewExtractorWithChannels(logger *zap.Logger, maxHops int, primary, fallback []Channel) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		logger:   logger.Named("detect"),
		primary:  primary,
		fallback: fallback,
		maxHops:  maxHops,
	}
}

// Extract returns the deduplicated, ranked candidates visible in snap.
func (e *Extractor) Extract(snap *schemas.Snapshot) []schemas.ActionCandidate {
	obs := screen.Normalize(snap)
	if obs.Empty() {
		return nil
	}
	in := Input{
		Snapshot:    snap,
		Structural:  obs.Structural,
		OCR:         obs.OCR,
		ScreenWidth: snap.ScreenWidth(),
	}

	raw := runChannels(e.primary, in)
	if len(raw) == 0 {
		raw = runChannels(e.fallback, in)
	}
	out := Rank(Merge(raw, e.maxHops))

	e.logger.Debug("Candidates extracted.",
		zap.Int("structural", len(obs.Structural)),
		zap.Int("ocr", len(obs.OCR)),
		zap.Int("raw", len(raw)),
		zap.Int("merged", len(out)))
	return out
}

func runChannels(chs []Channel, in Input) []schemas.ActionCandidate {
	var out []schemas.ActionCandidate
	for _, ch := range chs {
		out = append(out, ch(in)...)
	}
	return out
}
