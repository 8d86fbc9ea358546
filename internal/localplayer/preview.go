package localplayer

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/time/rate"

	"go2tv.app/castvideos/internal/media"
)

// ErrPreviewThrottled is returned when previews are requested faster than
// once every previewInterval.
var ErrPreviewThrottled = errors.New("preview requested too often")

const previewInterval = 3 * time.Second

// Previewer opens media in the system viewer.
type Previewer struct {
	limiter *rate.Limiter
	open    func(input string) error
	Logger  zerolog.Logger
}

func NewPreviewer(logger zerolog.Logger) *Previewer {
	return &Previewer{
		limiter: rate.NewLimiter(rate.Every(previewInterval), 1),
		open:    open.Start,
		Logger:  logger,
	}
}

// Open shows info in the system viewer. Local files are opened directly,
// everything else by URL.
func (p *Previewer) Open(info *media.Info) error {
	if info == nil {
		return nil
	}
	if !p.limiter.Allow() {
		return ErrPreviewThrottled
	}

	target := info.LocalPath()
	if target == "" {
		target = info.ContentID()
	}

	p.Logger.Debug().Str("Method", "Open").Str("Target", target).Msg("opening preview")
	if err := p.open(target); err != nil {
		return errors.Wrap(err, "preview")
	}
	return nil
}
