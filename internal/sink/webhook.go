// Package sink delivers formatted notice text to a webhook-style HTTP
// endpoint, splitting oversized payloads into fixed-size chunks.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"manawatch/internal/pacer"
	logx "manawatch/pkg/logx"
)

// DefaultMaxLen is the per-request limit imposed by the sink, counted
// in characters.
const DefaultMaxLen = 2000

type payload struct {
	Content string `json:"content"`
}

// Webhook posts text payloads to an endpoint accepting
// {"content": <text>}; any 2xx response counts as delivered.
type Webhook struct {
	client *http.Client
	log    logx.Logger
	maxLen int
	pacer  pacer.Pacer
}

type Option func(*Webhook)

func WithClient(c *http.Client) Option { return func(w *Webhook) { w.client = c } }
func WithMaxLen(n int) Option {
	return func(w *Webhook) {
		if n > 0 {
			w.maxLen = n
		}
	}
}
func WithPacer(p pacer.Pacer) Option { return func(w *Webhook) { w.pacer = p } }

func NewWebhook(log logx.Logger, opts ...Option) *Webhook {
	w := &Webhook{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
		maxLen: DefaultMaxLen,
		pacer:  pacer.Fixed(time.Second),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Post delivers text as a single request, regardless of length.
func (w *Webhook) Post(ctx context.Context, url string, text string) error {
	body, err := json.Marshal(payload{Content: text})
	if err != nil {
		return fmt.Errorf("sink: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sink: rejected with status %d", resp.StatusCode)
	}
	return nil
}

// Send delivers text, splitting anything longer than the per-request
// limit into fixed-size slices. The limit counts characters, not bytes,
// so a boundary never falls inside a multi-byte rune.
//
// Slices are sent in reverse slice-index order (last slice first). This
// mirrors the behavior the receiving side has come to depend on; readers
// reassemble by concatenating chunks in reverse arrival order. Fix only
// in coordination with the consumers of the endpoint.
//
// A failed chunk is reported but does not stop the remaining chunks, and
// chunks already sent are never rolled back.
func (w *Webhook) Send(ctx context.Context, url string, text string) error {
	runes := []rune(text)
	if len(runes) <= w.maxLen {
		return w.Post(ctx, url, text)
	}

	parts := (len(runes) + w.maxLen - 1) / w.maxLen
	var errs []error
	for i := parts - 1; i >= 0; i-- {
		end := (i + 1) * w.maxLen
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[i*w.maxLen : end])

		if err := w.Post(ctx, url, chunk); err != nil {
			w.log.Warn("chunk delivery failed", logx.Int("part", i), logx.Int("parts", parts), logx.Err(err))
			errs = append(errs, fmt.Errorf("part %d/%d: %w", i+1, parts, err))
		}
		if err := w.pacer.Wait(ctx); err != nil {
			return errors.Join(append(errs, err)...)
		}
	}
	return errors.Join(errs...)
}
