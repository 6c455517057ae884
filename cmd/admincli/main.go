// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/melodystream/internal/app/filter"
	"github.com/osa030/melodystream/internal/app/library"
	"github.com/osa030/melodystream/internal/domain/like"
	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
	"github.com/osa030/melodystream/internal/domain/user"
	"github.com/osa030/melodystream/internal/infra/config"
	"github.com/osa030/melodystream/internal/infra/logger"
	"github.com/osa030/melodystream/internal/infra/sqlite"
)

var (
	app        = kingpin.New("melodystream-admincli", "MelodyStream database administration")
	dbPath     = app.Flag("db", "Path to the SQLite database").Default("melodystream.db").Envar("DATABASE_PATH").String()
	configPath = app.Flag("config", "Server config file (filters and messages)").Envar("MELODYSTREAM_CONFIG").String()

	// seed command
	seedCmd = app.Command("seed", "Insert the sample catalog and demo accounts")

	// add-song command
	addSongCmd      = app.Command("add-song", "Add a song to the catalog")
	addSongTitle    = addSongCmd.Flag("title", "Song title").Required().String()
	addSongArtist   = addSongCmd.Flag("artist", "Artist").Required().String()
	addSongAlbum    = addSongCmd.Flag("album", "Album").String()
	addSongDuration = addSongCmd.Flag("duration", "Duration (e.g. 3m20s)").Required().Duration()
	addSongAudio    = addSongCmd.Flag("audio-url", "Audio URL").Required().String()
	addSongCover    = addSongCmd.Flag("cover-url", "Cover image URL").String()

	// add-to-playlist command
	addToPlaylistCmd  = app.Command("add-to-playlist", "Add a song to any playlist, bypassing the owner check")
	addToPlaylistID   = addToPlaylistCmd.Arg("playlist-id", "Playlist ID").Required().String()
	addToPlaylistSong = addToPlaylistCmd.Arg("song-id", "Song ID").Required().String()

	// list-users command
	listUsersCmd = app.Command("list-users", "List registered users").Alias("users")

	// make-admin command
	makeAdminCmd   = app.Command("make-admin", "Grant or revoke admin rights")
	makeAdminLogin = makeAdminCmd.Arg("user", "Username or email").Required().String()
	makeAdminOff   = makeAdminCmd.Flag("revoke", "Revoke admin rights instead").Bool()

	// export command
	exportCmd = app.Command("export", "Export users, playlists and likes as JSON")
	exportOut = exportCmd.Flag("out", "Output file (default: stdout)").Short('o').String()
)

// sampleSongs is the catalog installed by seed.
var sampleSongs = []track.Track{
	{ID: "song1", Title: "Blinding Lights", Artist: "The Weeknd", Album: "After Hours", Duration: 200,
		AudioURL: "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3",
		CoverURL: "https://images.unsplash.com/photo-1493225457124-a3eb161ffa5f?w=300&h=300&fit=crop"},
	{ID: "song2", Title: "Shape of You", Artist: "Ed Sheeran", Album: "÷ (Divide)", Duration: 233,
		AudioURL: "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-2.mp3",
		CoverURL: "https://images.unsplash.com/photo-1511379938547-c1f69419868d?w=300&h=300&fit=crop"},
	{ID: "song3", Title: "Someone Like You", Artist: "Adele", Album: "21", Duration: 285,
		AudioURL: "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-3.mp3",
		CoverURL: "https://images.unsplash.com/photo-1493225457124-a3eb161ffa5f?w=300&h=300&fit=crop"},
	{ID: "song4", Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera", Duration: 355,
		AudioURL: "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-4.mp3",
		CoverURL: "https://images.unsplash.com/photo-1506905925346-21bda4d32df4?w=300&h=300&fit=crop"},
	{ID: "song5", Title: "Imagine", Artist: "John Lennon", Album: "Imagine", Duration: 183,
		AudioURL: "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-5.mp3",
		CoverURL: "https://images.unsplash.com/photo-1493225457124-a3eb161ffa5f?w=300&h=300&fit=crop"},
	{ID: "song6", Title: "Hotel California", Artist: "Eagles", Album: "Hotel California", Duration: 391,
		AudioURL: "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-6.mp3",
		CoverURL: "https://images.unsplash.com/photo-1511379938547-c1f69419868d?w=300&h=300&fit=crop"},
}

// sampleAccounts are the demo accounts installed by seed.
var sampleAccounts = []struct {
	reg   user.Registration
	admin bool
}{
	{reg: user.Registration{Username: "demo", Email: "demo@example.com", Password: "password123", FirstName: "Demo", LastName: "User"}},
	{reg: user.Registration{Username: "admin", Email: "admin@example.com", Password: "admin123", FirstName: "Admin", LastName: "User"}, admin: true},
}

// export is the document written by the export command.
type export struct {
	ExportedAt time.Time          `json:"exportedAt"`
	Users      []user.User        `json:"users"`
	Playlists  []exportedPlaylist `json:"playlists"`
	Likes      []like.LikedSong   `json:"likes"`
}

type exportedPlaylist struct {
	playlist.Playlist
	Songs []string `json:"songIds"`
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Only warnings reach the console; command output goes to stdout.
	if _, err := logger.Init(logger.Config{Output: "stderr", Level: "warn"}); err != nil {
		fail(err)
	}

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fail(err)
		}
		cfg = loaded
	}

	ctx := context.Background()

	store, err := sqlite.Open(ctx, *dbPath, sqlite.Options{BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		fail(err)
	}
	defer store.Close()

	svc := library.NewService(store, cfg, nil)

	switch command {
	case seedCmd.FullCommand():
		err = seed(ctx, store, svc)
	case addSongCmd.FullCommand():
		err = addSong(ctx, svc)
	case addToPlaylistCmd.FullCommand():
		err = addToPlaylist(ctx, svc, *addToPlaylistID, *addToPlaylistSong)
	case listUsersCmd.FullCommand():
		err = listUsers(ctx, store)
	case makeAdminCmd.FullCommand():
		err = makeAdmin(ctx, store, *makeAdminLogin, !*makeAdminOff)
	case exportCmd.FullCommand():
		err = exportData(ctx, store, *exportOut)
	}
	if err != nil {
		store.Close()
		fail(err)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

// seed installs the sample data. Existing rows are left alone.
func seed(ctx context.Context, store *sqlite.Store, svc *library.Service) error {
	added := 0
	for _, song := range sampleSongs {
		t := song
		err := store.CreateSong(ctx, &t)
		switch {
		case errors.Is(err, sqlite.ErrConflict):
			continue
		case err != nil:
			return errors.Wrapf(err, "failed to seed song %s", song.ID)
		}
		added++
	}
	fmt.Printf("Songs: %d added, %d already present\n", added, len(sampleSongs)-added)

	for _, acc := range sampleAccounts {
		u, err := svc.CreateAccount(ctx, acc.reg, acc.admin)
		switch {
		case errors.Is(err, library.ErrConflict):
			fmt.Printf("User %s already exists\n", acc.reg.Username)
		case err != nil:
			return errors.Wrapf(err, "failed to seed user %s", acc.reg.Username)
		default:
			fmt.Printf("User %s created (id=%s admin=%v)\n", u.Username, u.ID, u.IsAdmin)
		}
	}
	return nil
}

func addSong(ctx context.Context, svc *library.Service) error {
	song, err := svc.CreateSong(ctx, library.Actor{IsAdmin: true}, track.Track{
		Title:    *addSongTitle,
		Artist:   *addSongArtist,
		Album:    *addSongAlbum,
		Duration: int(addSongDuration.Seconds()),
		AudioURL: *addSongAudio,
		CoverURL: *addSongCover,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Song added: id=%s title=%q artist=%q duration=%ds\n", song.ID, song.Title, song.Artist, song.Duration)
	return nil
}

// addToPlaylist adds a song as the system, so only the content filters apply.
func addToPlaylist(ctx context.Context, svc *library.Service, playlistID, songID string) error {
	entry, err := svc.AddSong(ctx, library.Actor{IsAdmin: true}, playlistID, songID, nil, filter.OriginSystem)
	if err != nil {
		var rejected *library.RejectedError
		if errors.As(err, &rejected) {
			return errors.Newf("rejected (%s): %s", rejected.Code, rejected.Message)
		}
		return err
	}
	fmt.Printf("Added %s to playlist %s at position %d\n", entry.SongID, entry.PlaylistID, entry.Position)
	return nil
}

func listUsers(ctx context.Context, store *sqlite.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== USERS (%d) ===\n", len(users))
	for _, u := range users {
		role := "user"
		if u.IsAdmin {
			role = "admin"
		}
		fmt.Printf("  %-36s  %-20s  %-30s  %s\n", u.ID, u.Username, u.Email, role)
	}
	fmt.Println()
	return nil
}

func makeAdmin(ctx context.Context, store *sqlite.Store, login string, admin bool) error {
	u, err := store.GetUserByLogin(ctx, login)
	if err != nil {
		return errors.Wrapf(err, "user %s", login)
	}
	if err := store.SetAdmin(ctx, u.ID, admin); err != nil {
		return err
	}
	if admin {
		fmt.Printf("%s is now an admin\n", u.Username)
	} else {
		fmt.Printf("%s is no longer an admin\n", u.Username)
	}
	return nil
}

func exportData(ctx context.Context, store *sqlite.Store, out string) error {
	doc := export{ExportedAt: time.Now().UTC()}

	var err error
	if doc.Users, err = store.ListUsers(ctx); err != nil {
		return err
	}
	if doc.Likes, err = store.ListAllLikes(ctx); err != nil {
		return err
	}

	playlists, err := store.ListAllPlaylists(ctx)
	if err != nil {
		return err
	}
	doc.Playlists = make([]exportedPlaylist, 0, len(playlists))
	for _, p := range playlists {
		entries, err := store.ListEntries(ctx, p.ID)
		if err != nil {
			return errors.Wrapf(err, "playlist %s", p.ID)
		}
		doc.Playlists = append(doc.Playlists, exportedPlaylist{
			Playlist: p,
			Songs:    track.IDs(playlist.Tracks(entries)),
		})
	}

	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return errors.Wrap(err, "failed to create export file")
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "failed to write export")
	}
	if out != "" {
		fmt.Printf("Exported %d users, %d playlists, %d likes to %s\n",
			len(doc.Users), len(doc.Playlists), len(doc.Likes), out)
	}
	return nil
}
