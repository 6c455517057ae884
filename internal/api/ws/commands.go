package ws

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/app/library"
	"github.com/osa030/melodystream/internal/app/notification"
	"github.com/osa030/melodystream/internal/app/playback"
	"github.com/osa030/melodystream/internal/app/session"
	"github.com/osa030/melodystream/internal/domain/track"
)

// Command types
const (
	CmdSetQueue      = "set_queue"
	CmdLoad          = "load"
	CmdPlay          = "play"
	CmdPause         = "pause"
	CmdToggle        = "toggle"
	CmdSeek          = "seek"
	CmdNext          = "next"
	CmdPrevious      = "previous"
	CmdToggleShuffle = "toggle_shuffle"
	CmdCycleRepeat   = "cycle_repeat"
	CmdSetVolume     = "set_volume"
	CmdToggleMute    = "toggle_mute"
	CmdToggleLike    = "toggle_like"
	CmdMediaTick     = "media_tick"
	CmdMediaDuration = "media_duration"
	CmdMediaEnded    = "media_ended"
	CmdMediaError    = "media_error"
	CmdPing          = "ping"
)

// Queue sources
const (
	SourceSongs    = "songs"
	SourcePlaylist = "playlist"
	SourceLiked    = "liked"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrRateLimited    = errors.New("too many commands")
)

// SetQueuePayload rebuilds the queue from a source.
type SetQueuePayload struct {
	Source      string `mapstructure:"source"`
	PlaylistID  string `mapstructure:"playlistId"`
	StartSongID string `mapstructure:"startSongId"`
	Autoplay    *bool  `mapstructure:"autoplay"`
}

// LoadPayload loads a song, from the queue when it is queued.
type LoadPayload struct {
	SongID   string `mapstructure:"songId"`
	Autoplay *bool  `mapstructure:"autoplay"`
}

// SeekPayload seeks to a fraction of the duration.
type SeekPayload struct {
	Fraction float64 `mapstructure:"fraction"`
}

// VolumePayload sets the volume.
type VolumePayload struct {
	Volume int `mapstructure:"volume"`
}

// MediaPayload carries a media clock notification.
type MediaPayload struct {
	TrackID  string  `mapstructure:"trackId"`
	Time     float64 `mapstructure:"time"`
	Duration float64 `mapstructure:"duration"`
	Message  string  `mapstructure:"message"`
}

// dispatch applies one command to the player and reports failures to the sender.
func (h *Handler) dispatch(ctx context.Context, c *client, player *session.Player, subID string, env Envelope) {
	if env.Type == CmdPing {
		c.sendDirect("pong", nil)
		return
	}
	if !c.limiter.Allow() {
		h.reject(c, player, subID, env.Type, ErrRateLimited)
		return
	}

	if err := h.apply(ctx, c, player.Session(), env); err != nil {
		h.reject(c, player, subID, env.Type, err)
	}
}

func (h *Handler) reject(c *client, player *session.Player, subID, command string, err error) {
	v := session.ErrorView{Command: command, Code: errorCode(err), Message: err.Error()}
	zlog.Debug().Msgf("ws: command rejected: user=%s command=%s code=%s: %v", c.principal.UserID, command, v.Code, err)
	if sendErr := player.SendError(subID, v); sendErr != nil {
		zlog.Debug().Msgf("ws: failed to send error: %v", sendErr)
	}
}

func (h *Handler) apply(ctx context.Context, c *client, s *playback.Session, env Envelope) error {
	switch env.Type {
	case CmdSetQueue:
		var p SetQueuePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return err
		}
		return h.setQueue(ctx, c, s, p)

	case CmdLoad:
		var p LoadPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return err
		}
		return h.load(ctx, s, p)

	case CmdPlay:
		return s.Play()
	case CmdPause:
		return s.Pause()
	case CmdToggle:
		return s.Toggle()

	case CmdSeek:
		var p SeekPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return err
		}
		return s.Seek(p.Fraction)

	case CmdNext:
		return s.Next()
	case CmdPrevious:
		return s.Previous()
	case CmdToggleShuffle:
		s.ToggleShuffle()
		return nil
	case CmdCycleRepeat:
		s.CycleRepeat()
		return nil

	case CmdSetVolume:
		var p VolumePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return err
		}
		s.SetVolume(p.Volume)
		return nil

	case CmdToggleMute:
		s.ToggleMute()
		return nil
	case CmdToggleLike:
		return s.ToggleLike()

	case CmdMediaTick, CmdMediaDuration, CmdMediaEnded, CmdMediaError:
		var p MediaPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return err
		}
		return s.HandleMediaEvent(mediaEvent(env.Type, p))

	default:
		return errors.Wrapf(ErrUnknownCommand, "%q", env.Type)
	}
}

func (h *Handler) setQueue(ctx context.Context, c *client, s *playback.Session, p SetQueuePayload) error {
	ctx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()

	var (
		tracks []track.Track
		err    error
	)
	switch p.Source {
	case SourceSongs, "":
		tracks, err = h.library.ListSongs(ctx)
	case SourcePlaylist:
		if p.PlaylistID == "" {
			return errors.Wrap(ErrInvalidPayload, "playlistId is required")
		}
		tracks, err = h.library.PlaylistTracks(ctx, c.principal.Actor, p.PlaylistID)
	case SourceLiked:
		tracks, err = h.library.LikedTracks(ctx, c.principal.UserID)
	default:
		return errors.Wrapf(ErrInvalidPayload, "unknown source %q", p.Source)
	}
	if err != nil {
		return err
	}

	if err := s.SetQueue(tracks); err != nil {
		return err
	}
	if p.StartSongID == "" {
		return nil
	}
	return s.LoadByID(p.StartSongID, autoplay(p.Autoplay))
}

func (h *Handler) load(ctx context.Context, s *playback.Session, p LoadPayload) error {
	if p.SongID == "" {
		return errors.Wrap(ErrInvalidPayload, "songId is required")
	}

	if slices.Contains(s.Snapshot().QueueIDs, p.SongID) {
		return s.LoadByID(p.SongID, autoplay(p.Autoplay))
	}

	// Not queued: load it from the catalog without touching the queue.
	ctx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()
	t, err := h.library.GetSong(ctx, p.SongID)
	if err != nil {
		return err
	}
	if err := s.Load(*t); err != nil {
		return err
	}
	if autoplay(p.Autoplay) {
		return s.Play()
	}
	return nil
}

func mediaEvent(typ string, p MediaPayload) playback.MediaEvent {
	ev := playback.MediaEvent{TrackID: p.TrackID, Message: p.Message}
	switch typ {
	case CmdMediaTick:
		ev.Type = playback.MediaTick
		ev.Time = p.Time
	case CmdMediaDuration:
		ev.Type = playback.MediaDuration
		ev.Time = p.Duration
	case CmdMediaEnded:
		ev.Type = playback.MediaEnded
	default:
		ev.Type = playback.MediaError
	}
	return ev
}

func autoplay(v *bool) bool {
	return v == nil || *v
}

// decodePayload decodes command data into out.
func decodePayload(data map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(data); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode payload"), ErrInvalidPayload)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, library.ErrNotFound):
		return "not_found"
	case errors.Is(err, library.ErrForbidden):
		return "forbidden"
	default:
		return session.ErrorCode(err)
	}
}

func errorData(command, code, message string) session.ErrorView {
	return session.ErrorView{Command: command, Code: code, Message: message}
}

var _ notification.Stream = (*client)(nil)
