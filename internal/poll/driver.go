package poll

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fritzwatch/internal/config"
	"fritzwatch/internal/fritz"
	"fritzwatch/internal/logparse"
	"fritzwatch/internal/merge"
	"fritzwatch/internal/model"
	"fritzwatch/internal/recent"
	"fritzwatch/internal/stats"
	"fritzwatch/internal/storage"
)

// Forwarder receives every freshly incorporated record.
type Forwarder interface {
	Forward(ctx context.Context, records []model.Record) error
}

// Driver runs the poll loop: fetch the device log on a timer, reverse
// it into old-to-new order, normalize, and merge into the store. One
// poll is in flight at a time; merges never run concurrently.
type Driver struct {
	client  *fritz.Client
	parser  *logparse.Parser
	store   storage.Store
	forward Forwarder
	stats   *stats.Store
	recent  *recent.Buffer
	cfg     *config.Manager
	logger  *slog.Logger

	session fritz.Session
}

func NewDriver(
	cfg *config.Manager,
	client *fritz.Client,
	parser *logparse.Parser,
	store storage.Store,
	forward Forwarder,
	statsStore *stats.Store,
	recentBuf *recent.Buffer,
	logger *slog.Logger,
) *Driver {
	if statsStore == nil {
		statsStore = stats.NewStore()
	}
	return &Driver{
		client:  client,
		parser:  parser,
		store:   store,
		forward: forward,
		stats:   statsStore,
		recent:  recentBuf,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run polls until the context is cancelled. The initial login must
// succeed; after that, fetch failures only skip to the next tick, since
// the device may just be restarting.
func (d *Driver) Run(ctx context.Context) error {
	session, err := d.client.Login(ctx)
	if err != nil {
		return err
	}
	d.session = session
	if d.logger != nil {
		d.logger.Info("logged in", "session_id", session.ID)
	}

	timer := time.NewTimer(d.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logout()
			return nil
		case <-timer.C:
		}
		d.pollOnce(ctx)
		timer.Reset(d.interval())
	}
}

func (d *Driver) interval() time.Duration {
	if interval := d.cfg.Get().Poll.Interval; interval > 0 {
		return interval
	}
	return 60 * time.Second
}

func (d *Driver) pollOnce(ctx context.Context) {
	session, err := d.client.EnsureSession(ctx, d.session)
	if err != nil {
		d.fail("couldn't renew session", err)
		return
	}
	d.session = session

	raw, err := d.client.FetchLogs(ctx, session)
	if err != nil {
		d.fail("couldn't fetch logs", err)
		return
	}
	if len(raw) == 0 {
		d.stats.RecordPoll(0, 0)
		return
	}

	// The device delivers newest first; the merge wants old to new.
	reverse(raw)

	batch, err := d.parser.ParseAll(raw)
	if err != nil {
		d.fail("couldn't normalize batch", err)
		return
	}

	latest, err := d.store.SelectLatest(ctx)
	if err != nil {
		d.fail("couldn't read latest entry", err)
		return
	}

	incorporated, err := merge.Merge(ctx, d.store, batch)
	if err != nil {
		var unsorted *merge.UnsortedBatchError
		var gap *merge.OverlapNotFoundError
		switch {
		case errors.As(err, &unsorted):
			d.fail("device feed violated ordering", err)
		case errors.As(err, &gap):
			// The log advanced past what any poll saw. Nothing to do
			// but surface it; the next poll starts from the new state.
			d.fail("gap in device history", err)
		default:
			// Store failure mid-merge. Committed appends are a prefix of
			// the correct result, so retrying the same window is safe.
			d.fail("merge failed", err)
		}
		return
	}

	d.logAnomalies(latest, incorporated)
	d.stats.RecordPoll(len(batch), len(incorporated))
	if d.recent != nil {
		d.recent.Add(incorporated...)
	}

	if err := d.store.SaveUpdate(ctx, model.UpdateInfo{
		Timestamp:    time.Now().UTC(),
		UpsertedRows: int64(len(incorporated)),
	}); err != nil && d.logger != nil {
		d.logger.Warn("couldn't save update metadata", "err", err)
	}

	if d.forward != nil && len(incorporated) > 0 {
		if err := d.forward.Forward(ctx, incorporated); err != nil && d.logger != nil {
			d.logger.Warn("couldn't forward records", "count", len(incorporated), "err", err)
		}
	}

	if d.logger != nil {
		d.logger.Info("poll complete", "fetched", len(batch), "incorporated", len(incorporated))
	}
}

// logAnomalies flags a pivot replacement whose repetition state flipped
// between present and absent. That is accepted as data, but the device
// is not expected to do it.
func (d *Driver) logAnomalies(latest *model.Record, incorporated []model.Record) {
	if d.logger == nil || latest == nil || len(incorporated) == 0 {
		return
	}
	first := incorporated[0]
	if !first.SameEntry(*latest) {
		return
	}
	if (first.Repetition == nil) != (latest.Repetition == nil) {
		d.logger.Warn("repetition state flipped on update",
			"message_id", first.MessageID,
			"category_id", first.CategoryID,
			"had_repetition", latest.Repetition != nil,
		)
	}
}

func (d *Driver) fail(msg string, err error) {
	d.stats.RecordError(err)
	if d.logger != nil {
		d.logger.Warn(msg, "err", err)
	}
}

func (d *Driver) logout() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.client.Logout(ctx, d.session); err != nil && d.logger != nil {
		d.logger.Warn("couldn't log out", "err", err)
	}
}

func reverse(entries []logparse.RawEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
