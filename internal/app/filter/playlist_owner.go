package filter

import (
	"context"
)

// PlaylistOwnerFilter rejects additions by anyone but the playlist owner.
type PlaylistOwnerFilter struct{}

func (f *PlaylistOwnerFilter) Name() string {
	return "playlist_owner_filter"
}

func (f *PlaylistOwnerFilter) Description() string {
	return "Only the playlist owner can add songs"
}

func (f *PlaylistOwnerFilter) ReturnCodes() []string {
	return []string{"not_playlist_owner"}
}

func (f *PlaylistOwnerFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *PlaylistOwnerFilter) AppliesTo(origin Origin) bool {
	return origin == OriginUser
}

func (f *PlaylistOwnerFilter) Check(ctx context.Context, req AddRequest) Result {
	if !req.Playlist.IsOwnedBy(req.UserID) {
		return Reject("not_playlist_owner")
	}
	return Accept()
}

func init() {
	Register("playlist_owner_filter", func() Filter {
		return &PlaylistOwnerFilter{}
	})
}
