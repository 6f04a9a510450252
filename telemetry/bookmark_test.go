package telemetry

import "testing"

func hasBookmark(bookmarks []Bookmark, typ BookmarkType) bool {
	for _, bm := range bookmarks {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_Breakthrough(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(GenerationStats{Generation: i, Mean: 10, Std: 1, BestReturn: 10})
	}

	bookmarks := bd.Check(GenerationStats{Generation: 5, Mean: 20, Std: 1, BestReturn: 20})
	if !hasBookmark(bookmarks, BookmarkBreakthrough) {
		t.Error("expected breakthrough bookmark")
	}
	if !hasBookmark(bookmarks, BookmarkNewBest) {
		t.Error("expected new_best bookmark")
	}
	if hasBookmark(bookmarks, BookmarkCollapse) {
		t.Error("unexpected collapse bookmark")
	}
}

func TestBookmarkDetector_Collapse(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(GenerationStats{Generation: i, Mean: 100, Std: 5, BestReturn: 100})
	}

	bookmarks := bd.Check(GenerationStats{Generation: 5, Mean: 50, Std: 5, BestReturn: 100})
	if !hasBookmark(bookmarks, BookmarkCollapse) {
		t.Error("expected collapse bookmark")
	}

	// Peak resets after a collapse.
	bookmarks = bd.Check(GenerationStats{Generation: 6, Mean: 48, Std: 5, BestReturn: 100})
	if hasBookmark(bookmarks, BookmarkCollapse) {
		t.Error("collapse reported twice")
	}
}

func TestBookmarkDetector_PlateauOnce(t *testing.T) {
	bd := NewBookmarkDetector(5)

	var plateaus []int
	for i := 0; i < 12; i++ {
		if hasBookmark(bd.Check(GenerationStats{Generation: i, Mean: 1, Std: 1, BestReturn: 10}), BookmarkPlateau) {
			plateaus = append(plateaus, i)
		}
	}
	if len(plateaus) != 1 || plateaus[0] != 5 {
		t.Errorf("plateau generations = %v, want [5]", plateaus)
	}

	// An improvement re-arms the plateau check.
	bd.Check(GenerationStats{Generation: 12, Mean: 1, Std: 1, BestReturn: 11})
	found := false
	for i := 13; i < 20; i++ {
		if hasBookmark(bd.Check(GenerationStats{Generation: i, Mean: 1, Std: 1, BestReturn: 11}), BookmarkPlateau) {
			found = true
		}
	}
	if !found {
		t.Error("expected a second plateau after improvement")
	}
}

func TestBookmarkDetector_FirstBestIsSilent(t *testing.T) {
	bd := NewBookmarkDetector(5)
	if hasBookmark(bd.Check(GenerationStats{Mean: 1, Std: 1, BestReturn: 3}), BookmarkNewBest) {
		t.Error("first generation should not report new_best")
	}
	if !hasBookmark(bd.Check(GenerationStats{Generation: 1, Mean: 1, Std: 1, BestReturn: 4}), BookmarkNewBest) {
		t.Error("expected new_best on improvement")
	}
}

func TestBookmarkDetector_ZeroVariance(t *testing.T) {
	bd := NewBookmarkDetector(5)
	bookmarks := bd.Check(GenerationStats{Generation: 0, Skipped: true})
	if !hasBookmark(bookmarks, BookmarkZeroVariance) {
		t.Error("expected zero_variance bookmark")
	}
}
