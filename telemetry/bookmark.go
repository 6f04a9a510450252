package telemetry

import (
	"fmt"
	"log/slog"
	"math"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkNewBest      BookmarkType = "new_best"
	BookmarkBreakthrough BookmarkType = "breakthrough"
	BookmarkCollapse     BookmarkType = "collapse"
	BookmarkPlateau      BookmarkType = "plateau"
	BookmarkZeroVariance BookmarkType = "zero_variance"
)

// Bookmark marks a notable generation during training.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Generation  int          `csv:"generation"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"generation", b.Generation,
		"description", b.Description,
	)
}

// BookmarkDetector watches generation stats for notable moments.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []GenerationStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	bestReturn       float64 // best return seen so far
	peakMean         float64 // highest population mean since the last collapse
	havePeak         bool
	sinceImprovement int // generations since the best return moved
	plateauReported  bool
}

// NewBookmarkDetector creates a detector with the given history size. The
// history size doubles as the plateau length.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5
	}
	return &BookmarkDetector{
		history:     make([]GenerationStats, historySize),
		historySize: historySize,
		bestReturn:  math.Inf(-1),
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats GenerationStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkNewBest(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if bd.historyFull || bd.historyIdx > 0 {
		// Breakthrough: population mean jumps well above the rolling average
		if b := bd.checkBreakthrough(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Collapse: mean dropped sharply from its recent peak
		if b := bd.checkCollapse(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	if b := bd.checkPlateau(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if stats.Skipped {
		bookmarks = append(bookmarks, Bookmark{
			Type:        BookmarkZeroVariance,
			Generation:  stats.Generation,
			Description: fmt.Sprintf("Update skipped, population returns have std %.3g", stats.Std),
		})
	}

	bd.addToHistory(stats)

	if !bd.havePeak || stats.Mean > bd.peakMean {
		bd.peakMean = stats.Mean
		bd.havePeak = true
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats GenerationStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []GenerationStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkNewBest(stats GenerationStats) *Bookmark {
	if math.IsNaN(stats.BestReturn) || stats.BestReturn <= bd.bestReturn {
		bd.sinceImprovement++
		return nil
	}
	old := bd.bestReturn
	bd.bestReturn = stats.BestReturn
	bd.sinceImprovement = 0
	bd.plateauReported = false

	if math.IsInf(old, -1) {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkNewBest,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("Best return improved from %.2f to %.2f", old, stats.BestReturn),
	}
}

func (bd *BookmarkDetector) checkBreakthrough(stats GenerationStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var meanSum, stdSum float64
	for _, h := range history {
		meanSum += h.Mean
		stdSum += h.Std
	}
	avgMean := meanSum / float64(len(history))
	avgStd := stdSum / float64(len(history))
	if avgStd == 0 {
		return nil
	}

	if stats.Mean-avgMean > 2*avgStd {
		return &Bookmark{
			Type:        BookmarkBreakthrough,
			Generation:  stats.Generation,
			Description: fmt.Sprintf("Mean return %.2f is %.1f std above rolling average %.2f", stats.Mean, (stats.Mean-avgMean)/avgStd, avgMean),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkCollapse(stats GenerationStats) *Bookmark {
	if !bd.havePeak {
		return nil
	}

	drop := bd.peakMean - stats.Mean
	if drop > 0.3*math.Abs(bd.peakMean) && drop > 2*stats.Std {
		// Reset peak after collapse
		oldPeak := bd.peakMean
		bd.peakMean = stats.Mean

		return &Bookmark{
			Type:        BookmarkCollapse,
			Generation:  stats.Generation,
			Description: fmt.Sprintf("Mean return fell from peak %.2f to %.2f", oldPeak, stats.Mean),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkPlateau(stats GenerationStats) *Bookmark {
	if bd.plateauReported || bd.sinceImprovement < bd.historySize {
		return nil
	}
	bd.plateauReported = true
	return &Bookmark{
		Type:        BookmarkPlateau,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("No improvement over best %.2f for %d generations", bd.bestReturn, bd.sinceImprovement),
	}
}
