// Package main provides a terminal player that drives a local player session
// against a running server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/melodystream/internal/app/playback"
	"github.com/osa030/melodystream/internal/domain/like"
	"github.com/osa030/melodystream/internal/domain/playlist"
	"github.com/osa030/melodystream/internal/domain/track"
	"github.com/osa030/melodystream/internal/infra/apiclient"
	"github.com/osa030/melodystream/internal/infra/logger"
)

var (
	app     = kingpin.New("melodystream-player", "MelodyStream terminal player")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("MELODYSTREAM_SERVER").String()
	token   = app.Flag("token", "Access token (or set MELODYSTREAM_TOKEN env)").Envar("MELODYSTREAM_TOKEN").String()
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	// login command
	loginCmd      = app.Command("login", "Log in and print an access token")
	loginUser     = loginCmd.Arg("user", "Username or email").Required().String()
	loginPassword = loginCmd.Arg("password", "Password").Required().String()

	// songs command
	songsCmd   = app.Command("songs", "List or search the catalog")
	songsQuery = songsCmd.Arg("query", "Search text").String()

	// play command
	playCmd      = app.Command("play", "Start an interactive player")
	playPlaylist = playCmd.Flag("playlist", "Queue a playlist instead of the catalog").String()
	playLiked    = playCmd.Flag("liked", "Queue liked songs instead of the catalog").Bool()
	playSpeed    = playCmd.Flag("speed", "Media seconds per wall-clock second").Default("1").Float64()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		fail(err)
	}

	client, err := apiclient.New(apiclient.Config{BaseURL: *server})
	if err != nil {
		fail(err)
	}
	client.SetToken(*token)

	ctx := context.Background()

	switch command {
	case loginCmd.FullCommand():
		err = login(ctx, client, *loginUser, *loginPassword)
	case songsCmd.FullCommand():
		err = listSongs(ctx, client, *songsQuery)
	case playCmd.FullCommand():
		err = play(ctx, client)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func login(ctx context.Context, client *apiclient.Client, identifier, password string) error {
	resp, err := client.Login(ctx, identifier, password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (expires %s)\n", resp.User.Username, resp.ExpiresAt.Local().Format(time.DateTime))
	fmt.Printf("export MELODYSTREAM_TOKEN=%s\n", resp.Token)
	return nil
}

func listSongs(ctx context.Context, client *apiclient.Client, query string) error {
	var (
		songs []track.Track
		err   error
	)
	if query == "" {
		songs, err = client.ListSongs(ctx)
	} else {
		songs, err = client.SearchSongs(ctx, query)
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n=== SONGS (%d) ===\n", len(songs))
	for _, s := range songs {
		fmt.Printf("  %-10s  %-30s  %-20s  %s\n", s.ID, s.Title, s.Artist, formatSeconds(float64(s.Duration)))
	}
	fmt.Println()
	return nil
}

// fillQueue sets the queue the player starts with. The catalog is the default.
func fillQueue(ctx context.Context, client *apiclient.Client, s *playback.Session) error {
	switch {
	case *playPlaylist != "":
		detail, err := client.GetPlaylist(ctx, *playPlaylist)
		if err != nil {
			return err
		}
		return s.SetQueue(playlist.Tracks(detail.Songs))
	case *playLiked:
		liked, err := client.LikedSongs(ctx)
		if err != nil {
			return err
		}
		return s.SetQueue(like.Tracks(liked))
	default:
		return s.RefreshQueue(ctx)
	}
}

func play(ctx context.Context, client *apiclient.Client) error {
	if client.Token() == "" {
		return errors.New("an access token is required (run login, then set MELODYSTREAM_TOKEN)")
	}

	me, err := client.CurrentUser(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to verify token")
	}

	cfg := playback.DefaultConfig()
	cfg.UserID = me.ID
	s := playback.NewSession(client, cfg)
	defer s.Close()

	if err := fillQueue(ctx, client, s); err != nil {
		return err
	}
	queued := s.Snapshot().QueueIDs
	if len(queued) == 0 {
		return errors.New("nothing to play")
	}
	if err := s.LoadByID(queued[0], false); err != nil {
		return err
	}

	fmt.Printf("Hi %s. %d tracks queued. Type 'help' for commands.\n", me.DisplayName(), len(queued))

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go printEvents(runCtx, s)
	go runClock(runCtx, s, *playSpeed)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-runCtx.Done():
			fmt.Println("\nBye")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := runCommand(s, line)
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// runCommand applies one line of input to the session.
func runCommand(s *playback.Session, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch strings.ToLower(fields[0]) {
	case "play":
		if arg != "" {
			return false, s.LoadByID(arg, true)
		}
		return false, s.Play()
	case "pause":
		return false, s.Pause()
	case "toggle", "p":
		return false, s.Toggle()
	case "next", "n":
		return false, s.Next()
	case "prev", "previous", "b":
		return false, s.Previous()
	case "seek":
		pct, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
		if err != nil {
			return false, errors.New("usage: seek <percent>")
		}
		return false, s.Seek(pct / 100)
	case "vol", "volume":
		v, err := strconv.Atoi(arg)
		if err != nil {
			return false, errors.New("usage: vol <0-100>")
		}
		fmt.Printf("volume %d (output %.0f%%)\n", s.SetVolume(v), s.EffectiveVolume()*100)
	case "mute":
		fmt.Printf("muted %v (output %.0f%%)\n", s.ToggleMute(), s.EffectiveVolume()*100)
	case "shuffle":
		fmt.Printf("shuffle %v\n", s.ToggleShuffle())
	case "repeat":
		fmt.Printf("repeat %s\n", s.CycleRepeat())
	case "like":
		return false, s.ToggleLike()
	case "queue":
		printQueue(s.Snapshot())
	case "status", "s":
		printState(s.Snapshot())
	case "help", "?":
		printHelp()
	case "quit", "q", "exit":
		return true, nil
	default:
		return false, errors.Newf("unknown command %q", fields[0])
	}
	return false, nil
}

// runClock stands in for a media element: it advances the position of the
// current track while it is playing.
func runClock(ctx context.Context, s *playback.Session, speed float64) {
	if speed <= 0 {
		speed = 1
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Snapshot()
			if st.Status != playback.StatusPlaying || st.Track == nil {
				continue
			}
			if err := s.HandleMediaEvent(playback.MediaEvent{
				Type:    playback.MediaTick,
				TrackID: st.Track.ID,
				Time:    st.CurrentTime + speed,
			}); errors.Is(err, playback.ErrSessionClosed) {
				return
			}
		}
	}
}

func printEvents(ctx context.Context, s *playback.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case playback.EventStateChanged, playback.EventQueueChanged:
				// Too chatty for a terminal
			case playback.EventTrackLoaded:
				if ev.State.Track != nil {
					fmt.Printf("♪ %s - %s [%s]\n", ev.State.Track.Title, ev.State.Track.Artist,
						formatSeconds(ev.State.Duration))
				}
			case playback.EventLikeChanged:
				fmt.Printf("♥ %s\n", ev.State.Like)
			default:
				if ev.Err != nil {
					fmt.Printf("[%s] %v\n", ev.Type, ev.Err)
				} else {
					fmt.Printf("[%s] %s\n", ev.Type, ev.TrackID)
				}
			}
		}
	}
}

func printState(st playback.State) {
	fmt.Println("\n=== PLAYER ===")
	if st.Track != nil {
		fmt.Printf("  Track:    %s - %s (%s)\n", st.Track.Title, st.Track.Artist, st.Track.ID)
	} else {
		fmt.Println("  Track:    -")
	}
	fmt.Printf("  Status:   %s\n", st.Status)
	fmt.Printf("  Position: %s / %s (%.0f%%)\n", formatSeconds(st.CurrentTime), formatSeconds(st.Duration), st.Progress()*100)
	fmt.Printf("  Volume:   %d (muted %v)\n", st.Volume, st.Muted)
	fmt.Printf("  Shuffle:  %v\n", st.Shuffled)
	fmt.Printf("  Repeat:   %s\n", st.RepeatMode)
	fmt.Printf("  Like:     %s\n", st.Like)
	fmt.Println()
}

func printQueue(st playback.State) {
	fmt.Printf("\n=== QUEUE (%d) ===\n", len(st.QueueIDs))
	for i, id := range st.QueueIDs {
		marker := " "
		if i == st.Cursor {
			marker = ">"
		}
		fmt.Printf(" %s %2d  %s\n", marker, i+1, id)
	}
	fmt.Println()
}

func printHelp() {
	fmt.Println(`Commands:
  play [song-id]   resume, or play a queued song
  pause | toggle   pause or toggle playback
  next | prev      move through the queue
  seek <percent>   jump within the track
  vol <0-100>      set the volume
  mute             toggle mute
  shuffle          toggle shuffle
  repeat           cycle repeat (none, all, one)
  like             toggle like on the current song
  queue | status   show the queue or the player state
  quit             leave`)
}

func formatSeconds(sec float64) string {
	if sec <= 0 {
		return "0:00"
	}
	d := time.Duration(sec) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
