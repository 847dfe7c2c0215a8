package catalog

import "xtplay/internal/media"

// Sample catalog served in demo mode and as a fallback when a portal
// returns no categories.

var sampleCategories = map[media.ContentType][]media.Category{
	media.Live: {
		{ID: "1", Name: "Sports"},
		{ID: "2", Name: "Entertainment"},
		{ID: "3", Name: "News"},
		{ID: "4", Name: "Kids"},
		{ID: "5", Name: "Movies"},
	},
	media.Movie: {
		{ID: "10", Name: "Action"},
		{ID: "11", Name: "Comedy"},
		{ID: "12", Name: "Drama"},
	},
	media.Series: {
		{ID: "20", Name: "Netflix Originals"},
		{ID: "21", Name: "HBO"},
	},
}

var sampleItems = map[media.ContentType][]media.Item{
	media.Live: {
		{Type: media.Live, ID: 1, Name: "Sky Sports Main Event", CategoryID: "1"},
		{Type: media.Live, ID: 2, Name: "CNN International", CategoryID: "3"},
		{Type: media.Live, ID: 3, Name: "BBC One", CategoryID: "2"},
		{Type: media.Live, ID: 4, Name: "Cartoon Network", CategoryID: "4"},
		{Type: media.Live, ID: 5, Name: "HBO", CategoryID: "5"},
		{Type: media.Live, ID: 6, Name: "ESPN", CategoryID: "1"},
	},
	media.Movie: {
		{Type: media.Movie, ID: 101, Name: "Inception", Rating: 8.8, CategoryID: "10", Extension: "mp4"},
		{Type: media.Movie, ID: 102, Name: "The Dark Knight", Rating: 9.0, CategoryID: "10", Extension: "mp4"},
		{Type: media.Movie, ID: 103, Name: "Superbad", Rating: 7.6, CategoryID: "11", Extension: "mkv"},
		{Type: media.Movie, ID: 104, Name: "The Godfather", Rating: 9.2, CategoryID: "12", Extension: "mp4"},
	},
	media.Series: {
		{Type: media.Series, ID: 201, Name: "Stranger Things", Rating: 8.7, CategoryID: "20", Extension: "mp4"},
		{Type: media.Series, ID: 202, Name: "Game of Thrones", Rating: 9.3, CategoryID: "21", Extension: "mkv"},
	},
}

var sampleSeries = map[int64]media.SeriesDetail{
	201: {
		Info: map[string]any{
			"name":        "Stranger Things",
			"plot":        "When a young boy disappears...",
			"director":    "The Duffer Brothers",
			"cast":        "Millie Bobby Brown, Finn Wolfhard",
			"genre":       "Sci-Fi, Horror",
			"releaseDate": "2016-07-15",
			"rating":      "8.7",
		},
		Seasons: []media.Season{
			{Number: 1, Key: "1", Episodes: []media.Episode{
				{ID: 1001, Number: 1, Title: "The Vanishing of Will Byers", Extension: "mp4", Duration: "48 min"},
				{ID: 1002, Number: 2, Title: "The Weirdo on Maple Street", Extension: "mp4", Duration: "55 min"},
				{ID: 1003, Number: 3, Title: "Holly, Jolly", Extension: "mp4", Duration: "51 min"},
			}},
			{Number: 2, Key: "2", Episodes: []media.Episode{
				{ID: 2001, Number: 1, Title: "MADMAX", Extension: "mp4", Duration: "48 min"},
				{ID: 2002, Number: 2, Title: "Trick or Treat, Freak", Extension: "mp4", Duration: "56 min"},
			}},
		},
	},
	202: {
		Info: map[string]any{
			"name":        "Game of Thrones",
			"plot":        "Nine noble families fight...",
			"director":    "David Benioff",
			"cast":        "Emilia Clarke, Peter Dinklage",
			"genre":       "Fantasy, Drama",
			"releaseDate": "2011-04-17",
			"rating":      "9.3",
		},
		Seasons: []media.Season{
			{Number: 1, Key: "1", Episodes: []media.Episode{
				{ID: 3001, Number: 1, Title: "Winter Is Coming", Extension: "mkv", Duration: "62 min"},
				{ID: 3002, Number: 2, Title: "The Kingsroad", Extension: "mkv", Duration: "56 min"},
			}},
			{Number: 2, Key: "2", Episodes: []media.Episode{
				{ID: 4001, Number: 1, Title: "The North Remembers", Extension: "mkv", Duration: "53 min"},
				{ID: 4002, Number: 2, Title: "The Night Lands", Extension: "mkv", Duration: "54 min"},
			}},
		},
	},
}

func sampleStreams(t media.ContentType, categoryID string) []media.Item {
	var out []media.Item
	for _, it := range sampleItems[t] {
		if allCategories(categoryID) || it.CategoryID == categoryID {
			out = append(out, it)
		}
	}
	return out
}
