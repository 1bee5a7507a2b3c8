package discovery

import (
	"context"

	"novelhub/pkg/models"
)

// Legacy list-shaped wrappers for pages that have not migrated to the
// unified document. Field renaming only, no new logic.

func (s *DataService) FetchTrendingNovels(ctx context.Context, timeRange string) []models.NovelListItem {
	lane := s.GetLane(ctx, LaneTrending, models.DiscoveryOptions{
		TimeRanges: map[string]string{"trending": timeRange},
	})
	return flattenLane(lane)
}

func (s *DataService) FetchNewArrivals(ctx context.Context) []models.NovelListItem {
	return flattenLane(s.GetLane(ctx, LaneNewArrivals, models.DiscoveryOptions{}))
}

func (s *DataService) FetchEditorsPick(ctx context.Context) []models.NovelListItem {
	return flattenLane(s.GetLane(ctx, LaneEditorsPick, models.DiscoveryOptions{}))
}

func (s *DataService) FetchCategoryNovels(ctx context.Context, category string) []models.NovelListItem {
	return flattenLane(s.GetLane(ctx, LaneCategory(category), models.DiscoveryOptions{}))
}

func flattenLane(lane *models.DiscoveryLaneData) []models.NovelListItem {
	items := make([]models.NovelListItem, 0, len(lane.Novels))
	for _, novel := range lane.Novels {
		items = append(items, models.NovelListItem{
			ID:       novel.ID,
			Name:     novel.Title,
			Author:   novel.Author,
			Cover:    novel.CoverURL,
			Score:    novel.Rating,
			Reviews:  novel.ReviewCount,
			Views:    novel.ViewCount,
			Chapters: novel.Chapters,
			Genres:   novel.Genres,
		})
	}
	return items
}
