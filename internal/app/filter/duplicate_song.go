package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/melodystream/internal/domain/track"
)

var (
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*[\(\[].*?remaster.*?[\)\]]`),      // "(Any Remaster text)"
		regexp.MustCompile(`\s*\(.*?version\)`),                  // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                     // "(Radio Edit)"
		regexp.MustCompile(`\s*\(live\)`),                        // "(Live)"
		regexp.MustCompile(`\s*-\s*live\b.*$`),                   // "- Live at Wembley"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),               // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),           // "- Single Version"
	}
	spaces = regexp.MustCompile(`\s+`)
)

// DuplicateSongFilter rejects songs already in the playlist.
// Besides exact ID matches it treats remasters and alternate versions by the
// same artist as duplicates. Covers by another artist are allowed.
type DuplicateSongFilter struct{}

// NewDuplicateSongFilter creates a new duplicate song filter.
func NewDuplicateSongFilter() *DuplicateSongFilter {
	return &DuplicateSongFilter{}
}

func (f *DuplicateSongFilter) Name() string {
	return "duplicate_song_filter"
}

func (f *DuplicateSongFilter) Description() string {
	return "Rejects songs already in the playlist, including remasters by the same artist. Covers are allowed"
}

func (f *DuplicateSongFilter) ReturnCodes() []string {
	return []string{"duplicate_song"}
}

func (f *DuplicateSongFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *DuplicateSongFilter) AppliesTo(origin Origin) bool {
	return true
}

func (f *DuplicateSongFilter) Check(ctx context.Context, req AddRequest) Result {
	for _, e := range req.Entries {
		if e.SongID == req.Song.ID || e.Song.ID == req.Song.ID {
			return Reject("duplicate_song")
		}
		if isSameSong(e.Song, req.Song) {
			return Reject("duplicate_song")
		}
	}
	return Accept()
}

// isSameSong reports whether two songs are versions of the same recording:
// same normalized title and same artist.
func isSameSong(a, b track.Track) bool {
	if a.Artist == "" || b.Artist == "" {
		return false
	}
	if normalizeTitle(a.Title) != normalizeTitle(b.Title) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a.Artist), strings.TrimSpace(b.Artist))
}

// normalizeTitle removes remaster and version annotations.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	for _, p := range versionPatterns {
		normalized = p.ReplaceAllString(normalized, "")
	}
	normalized = spaces.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}

func init() {
	Register("duplicate_song_filter", func() Filter {
		return &DuplicateSongFilter{}
	})
}
