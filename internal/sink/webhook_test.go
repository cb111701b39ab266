package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"manawatch/internal/pacer"
	logx "manawatch/pkg/logx"
)

type capture struct {
	mu       sync.Mutex
	contents []string
	fail     map[int]bool // request index -> respond 500
	seen     int
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode body: %v", err)
		}
		c.mu.Lock()
		idx := c.seen
		c.seen++
		c.contents = append(c.contents, p.Content)
		fail := c.fail[idx]
		c.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTestWebhook(maxLen int) *Webhook {
	return NewWebhook(logx.Nop(), WithMaxLen(maxLen), WithPacer(pacer.Nop()))
}

func TestSendShortMessageSingleRequest(t *testing.T) {
	t.Parallel()
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	msg := strings.Repeat("x", 2000)
	if err := newTestWebhook(2000).Send(context.Background(), srv.URL, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(c.contents) != 1 {
		t.Fatalf("expected 1 request, got %d", len(c.contents))
	}
	if c.contents[0] != msg {
		t.Fatalf("content altered in transit")
	}
}

func TestSendChunksReverseOrder(t *testing.T) {
	t.Parallel()
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	// 4500 chars of distinguishable content.
	var b strings.Builder
	for b.Len() < 4500 {
		b.WriteString("0123456789")
	}
	msg := b.String()[:4500]

	if err := newTestWebhook(2000).Send(context.Background(), srv.URL, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(c.contents) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(c.contents))
	}
	// Last slice first: 4000..4500, 2000..4000, 0..2000.
	if c.contents[0] != msg[4000:] {
		t.Fatalf("first request is not the tail slice")
	}
	if c.contents[1] != msg[2000:4000] {
		t.Fatalf("second request is not the middle slice")
	}
	if c.contents[2] != msg[:2000] {
		t.Fatalf("third request is not the head slice")
	}
	// Concatenating in reverse send order reconstructs the original.
	if c.contents[2]+c.contents[1]+c.contents[0] != msg {
		t.Fatalf("reverse-order concatenation does not reconstruct input")
	}
}

func TestSendMultibyteChunksCleanly(t *testing.T) {
	t.Parallel()
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	// 4500 three-byte characters: the limit counts characters, so the
	// boundaries must land between runes, never inside one.
	msg := strings.Repeat("あ", 4500)
	if err := newTestWebhook(2000).Send(context.Background(), srv.URL, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(c.contents) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(c.contents))
	}
	for i, chunk := range c.contents {
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk %d is not valid UTF-8", i)
		}
		if strings.ContainsRune(chunk, utf8.RuneError) {
			t.Fatalf("chunk %d carries a replacement rune", i)
		}
		if n := utf8.RuneCountInString(chunk); n > 2000 {
			t.Fatalf("chunk %d holds %d characters, limit is 2000", i, n)
		}
	}
	if c.contents[2]+c.contents[1]+c.contents[0] != msg {
		t.Fatalf("reverse-order concatenation does not reconstruct input")
	}
}

func TestSendMultibyteAtLimitSingleRequest(t *testing.T) {
	t.Parallel()
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	// 2000 characters is 6000 bytes; still one request.
	msg := strings.Repeat("あ", 2000)
	if err := newTestWebhook(2000).Send(context.Background(), srv.URL, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(c.contents) != 1 {
		t.Fatalf("expected 1 request, got %d", len(c.contents))
	}
	if c.contents[0] != msg {
		t.Fatalf("content altered in transit")
	}
}

func TestSendChunkFailureContinues(t *testing.T) {
	t.Parallel()
	c := &capture{fail: map[int]bool{1: true}}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	msg := strings.Repeat("a", 4500)
	err := newTestWebhook(2000).Send(context.Background(), srv.URL, msg)
	if err == nil {
		t.Fatal("expected an error for the failed chunk")
	}
	if len(c.contents) != 3 {
		t.Fatalf("failed chunk stopped the batch: %d requests", len(c.contents))
	}
}

func TestPostRejectedStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if err := newTestWebhook(2000).Post(context.Background(), srv.URL, "hello"); err == nil {
		t.Fatal("expected error on 403")
	}
}
