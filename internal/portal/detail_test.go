package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"manawatch/internal/pacer"
)

const detailPage = `<html><body>
<h1 id="info_detail_title">  運動会の
  お知らせ  </h1>
<div id="info_detail_body">グラウンドにて開催します。&lt;br&gt;雨天中止です。</div>
</body></html>`

func TestExtractDetail(t *testing.T) {
	t.Parallel()
	c := testClient(t, "https://portal.example/login", "https://portal.example/info")

	got, err := c.extractDetail([]byte(detailPage), "https://portal.example/info/1")
	if err != nil {
		t.Fatalf("extractDetail: %v", err)
	}
	if !strings.HasPrefix(got, "【運動会の お知らせ】\n") {
		t.Fatalf("banner missing or title whitespace not collapsed: %q", got)
	}
	if strings.Contains(got, "<br>") {
		t.Fatalf("literal break remnant survived: %q", got)
	}
	if !strings.Contains(got, "グラウンドにて開催します。") {
		t.Fatalf("body text missing: %q", got)
	}
}

func TestExtractDetailNoTitle(t *testing.T) {
	t.Parallel()
	c := testClient(t, "https://portal.example/login", "https://portal.example/info")

	got, err := c.extractDetail([]byte(`<div id="info_detail_body">本文のみ</div>`), "https://portal.example/info/2")
	if err != nil {
		t.Fatalf("extractDetail: %v", err)
	}
	if got != "本文のみ" {
		t.Fatalf("expected bare body without banner, got %q", got)
	}
}

func TestFetchDetailsFailSoft(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/info/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(detailPage))
	})
	mux.HandleFunc("/info/2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/info/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div id="info_detail_body">三件目</div>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL+"/login", srv.URL+"/info")
	urls := []string{srv.URL + "/info/1", srv.URL + "/info/2", srv.URL + "/info/3"}

	got := c.FetchDetails(context.Background(), Session{}, urls, pacer.Nop())
	if len(got) != 3 {
		t.Fatalf("expected all 3 urls attempted, got %d", len(got))
	}
	if got[0].Err != nil {
		t.Fatalf("first fetch should succeed: %v", got[0].Err)
	}
	if got[1].Err == nil {
		t.Fatal("second fetch should fail")
	}
	if got[2].Err != nil || !strings.Contains(got[2].Text, "三件目") {
		t.Fatalf("third fetch should succeed after a failure: %+v", got[2])
	}
}
