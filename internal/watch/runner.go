package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"manawatch/internal/pacer"
	"manawatch/internal/portal"
	"manawatch/internal/sink"
	"manawatch/internal/storage"
	logx "manawatch/pkg/logx"
)

var (
	ErrNoCredentials = errors.New("watch: portal credentials not configured")
	ErrNoSinkURL     = errors.New("watch: webhook url not configured")
	ErrNoStore       = errors.New("watch: storage not configured")
)

// Runner executes one full pipeline tick: login, list fetch, novelty
// filter, cursor advance, detail fetch, delivery. All collaborators are
// injected; the runner holds no mutable state of its own between ticks
// beyond what lives in the store.
type Runner struct {
	store  storage.Store
	portal *portal.Client
	sink   *sink.Webhook
	pages  pacer.Pacer
	log    logx.Logger
}

func NewRunner(store storage.Store, pc *portal.Client, wh *sink.Webhook, pages pacer.Pacer, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if pages == nil {
		pages = pacer.Fixed(time.Second)
	}
	return &Runner{store: store, portal: pc, sink: wh, pages: pages, log: log}
}

// Run performs one tick. Fatal errors (missing config, auth, list
// fetch) abort the tick; per-item detail and delivery failures are
// reported and the tick keeps going. The cursor is written exactly
// once, after novelty computation and before any delivery, so a crash
// mid-delivery redelivers rather than drops (at-least-once).
func (r *Runner) Run(ctx context.Context) error {
	if r.store == nil {
		return ErrNoStore
	}

	username, password, webhookURL, err := r.loadSettings(ctx)
	if err != nil {
		return err
	}

	sess, err := r.portal.Login(ctx, username, password)
	if err != nil {
		return err
	}
	// The previous cookie is stale the moment login succeeds.
	if err := r.store.Set(ctx, storage.KeySessionCookie, sess.Cookie); err != nil {
		r.log.Warn("session cookie persist failed", logx.Err(err))
	}

	notices, err := r.portal.FetchList(ctx, sess)
	if err != nil {
		return err
	}
	if len(notices) == 0 {
		r.log.Debug("notice list empty")
		return nil
	}

	cursor, _, err := r.store.Get(ctx, storage.KeyLastTitle)
	if err != nil {
		return fmt.Errorf("watch: read cursor: %w", err)
	}

	fresh := FilterNew(notices, cursor)
	if len(fresh) == 0 {
		r.log.Debug("no new notices", logx.String("cursor", cursor))
		return nil
	}
	r.log.Info("new notices found", logx.Int("count", len(fresh)))

	// Advance to the newest title of the full list, not the last new
	// entry processed. Never rolled back after this point.
	if err := r.store.Set(ctx, storage.KeyLastTitle, notices[0].Title); err != nil {
		return fmt.Errorf("watch: persist cursor: %w", err)
	}

	details := r.fetchDetails(ctx, sess, fresh)

	var errs []error
	for _, n := range fresh {
		text := r.formatNotice(n, details)
		if err := r.sink.Send(ctx, webhookURL, text); err != nil {
			r.log.Warn("notice delivery failed", logx.String("title", n.Title), logx.Err(err))
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) loadSettings(ctx context.Context) (username, password, webhookURL string, err error) {
	username, _, err = r.store.Get(ctx, storage.KeyUsername)
	if err != nil {
		return "", "", "", fmt.Errorf("watch: read username: %w", err)
	}
	password, _, err = r.store.Get(ctx, storage.KeyPassword)
	if err != nil {
		return "", "", "", fmt.Errorf("watch: read password: %w", err)
	}
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return "", "", "", ErrNoCredentials
	}
	webhookURL, _, err = r.store.Get(ctx, storage.KeyWebhookURL)
	if err != nil {
		return "", "", "", fmt.Errorf("watch: read webhook url: %w", err)
	}
	if strings.TrimSpace(webhookURL) == "" {
		return "", "", "", ErrNoSinkURL
	}
	return username, password, webhookURL, nil
}

// fetchDetails retrieves the detail page for every new notice that has
// one, sequentially and paced, and indexes the results by URL.
func (r *Runner) fetchDetails(ctx context.Context, sess portal.Session, fresh []portal.Notice) map[string]portal.Detail {
	var urls []string
	for _, n := range fresh {
		if n.DetailURL != "" {
			urls = append(urls, n.DetailURL)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	byURL := make(map[string]portal.Detail, len(urls))
	for _, d := range r.portal.FetchDetails(ctx, sess, urls, r.pages) {
		byURL[d.URL] = d
	}
	return byURL
}

func (r *Runner) formatNotice(n portal.Notice, details map[string]portal.Detail) string {
	if n.DetailURL != "" {
		if d, ok := details[n.DetailURL]; ok {
			if d.Err == nil && d.Text != "" {
				return d.Text
			}
			return summaryLine(n) + "\n本文を取得できませんでした"
		}
	}
	return summaryLine(n)
}

func summaryLine(n portal.Notice) string {
	return "【" + n.Title + "】\n" + n.Date + " / " + n.Status
}

// SetCursor overrides the persisted cursor, typically to replay from an
// older notice or to fast-forward past a bad title.
func (r *Runner) SetCursor(ctx context.Context, title string) error {
	if r.store == nil {
		return ErrNoStore
	}
	return r.store.Set(ctx, storage.KeyLastTitle, title)
}

// Cursor returns the persisted cursor, empty when none exists.
func (r *Runner) Cursor(ctx context.Context) (string, error) {
	if r.store == nil {
		return "", ErrNoStore
	}
	v, _, err := r.store.Get(ctx, storage.KeyLastTitle)
	return v, err
}

// TestMessage posts a timestamp probe to the sink so the operator can
// confirm the webhook is reachable. Best effort.
func (r *Runner) TestMessage(ctx context.Context) error {
	if r.store == nil {
		return ErrNoStore
	}
	url, _, err := r.store.Get(ctx, storage.KeyWebhookURL)
	if err != nil {
		return err
	}
	if strings.TrimSpace(url) == "" {
		return ErrNoSinkURL
	}
	return r.sink.Post(ctx, url, "現在時刻: "+time.Now().Format("2006/01/02 15:04:05"))
}

// ReportError surfaces a tick failure to the operator through the sink.
// Best effort: a second failure here is only logged.
func (r *Runner) ReportError(ctx context.Context, tickErr error) {
	if r.store == nil || tickErr == nil {
		return
	}
	url, _, err := r.store.Get(ctx, storage.KeyWebhookURL)
	if err != nil || strings.TrimSpace(url) == "" {
		return
	}
	msg := "エラーが発生しました: " + tickErr.Error()
	if err := r.sink.Send(ctx, url, msg); err != nil {
		r.log.Debug("error report delivery failed", logx.Err(err))
	}
}
