package pagesource

import (
	"context"
	"errors"
	"time"

	"github.com/dbehnke/mcdu429/internal/display"
	"github.com/rs/zerolog"
)

// PageSink accepts snapshots for a named endpoint. *transport.Engine
// satisfies it.
type PageSink interface {
	SubmitPage(endpoint string, snap display.Snapshot) error
}

// Poller fetches a source on a fixed interval and forwards changed
// pages to every target endpoint.
type Poller struct {
	src      Source
	sink     PageSink
	targets  []string
	interval time.Duration
	log      zerolog.Logger

	last    display.Snapshot
	hasLast bool
	lastErr string
}

func NewPoller(src Source, sink PageSink, interval time.Duration, log zerolog.Logger, targets ...string) (*Poller, error) {
	if src == nil || sink == nil {
		return nil, errors.New("pagesource: poller needs a source and a sink")
	}
	if interval <= 0 {
		return nil, errors.New("pagesource: interval must be > 0")
	}
	if len(targets) == 0 {
		return nil, errors.New("pagesource: at least one target endpoint required")
	}
	return &Poller{
		src:      src,
		sink:     sink,
		targets:  targets,
		interval: interval,
		log:      log.With().Str("source", src.Name()).Logger(),
	}, nil
}

// PollOnce fetches the source once and reports whether a new page was
// submitted. A malformed document blanks the display; any other fetch
// error keeps the previous page.
func (p *Poller) PollOnce(ctx context.Context) (bool, error) {
	snap, err := p.src.Fetch(ctx)
	if err != nil {
		p.noteError(err)
		if !errors.Is(err, ErrMalformed) {
			return false, err
		}
	} else if p.lastErr != "" {
		p.log.Info().Msg("page source recovered")
		p.lastErr = ""
	}

	if p.hasLast && snap == p.last {
		return false, err
	}
	for _, name := range p.targets {
		if serr := p.sink.SubmitPage(name, snap); serr != nil {
			return false, serr
		}
	}
	p.last = snap
	p.hasLast = true
	p.log.Debug().Str("title", snap.Title).Str("page", snap.PageID).Msg("page submitted")
	return true, err
}

// noteError logs each distinct failure once.
func (p *Poller) noteError(err error) {
	msg := err.Error()
	if msg == p.lastErr {
		return
	}
	p.lastErr = msg
	if errors.Is(err, ErrNoPage) {
		p.log.Debug().Err(err).Msg("no page")
		return
	}
	p.log.Warn().Err(err).Msg("page fetch failed")
}

// Run polls until ctx is done. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		_, _ = p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
