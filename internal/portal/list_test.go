package portal

import (
	"errors"
	"strings"
	"testing"

	logx "manawatch/pkg/logx"
)

func testClient(t *testing.T, loginURL, listURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{LoginURL: loginURL, ListURL: listURL}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

const listPage = `<html><body>
<table id="infoList">
  <tr data-href="/info/123">
    <td><span class="icon"></span><span>行事のお知らせ</span><span>2024/06/01</span></td>
    <td><span class="icon"></span><span>未読</span></td>
  </tr>
  <tr>
    <td><span class="icon"></span><span></span><span>2024/06/02</span></td>
    <td><span class="icon"></span><span>既読</span></td>
  </tr>
  <tr><th>ヘッダー</th></tr>
</table>
</body></html>`

func TestParseList(t *testing.T) {
	t.Parallel()
	c := testClient(t, "https://portal.example/login", "https://portal.example/info")

	got, err := c.parseList(strings.NewReader(listPage))
	if err != nil {
		t.Fatalf("parseList: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notices (header row skipped), got %d", len(got))
	}

	first := got[0]
	if first.Title != "行事のお知らせ" {
		t.Fatalf("title = %q", first.Title)
	}
	if first.Date != "2024/06/01" {
		t.Fatalf("date = %q", first.Date)
	}
	if first.Status != "未読" {
		t.Fatalf("status = %q", first.Status)
	}
	if first.DetailURL != "https://portal.example/info/123" {
		t.Fatalf("detail url = %q", first.DetailURL)
	}

	second := got[1]
	if second.Title != "タイトルなし" {
		t.Fatalf("missing title should yield placeholder, got %q", second.Title)
	}
	if second.DetailURL != "" {
		t.Fatalf("row without data-href should have empty detail url, got %q", second.DetailURL)
	}
}

func TestParseListTableMissing(t *testing.T) {
	t.Parallel()
	c := testClient(t, "https://portal.example/login", "https://portal.example/info")

	_, err := c.parseList(strings.NewReader(`<html><body><p>メンテナンス中</p></body></html>`))
	if !errors.Is(err, ErrListTableMissing) {
		t.Fatalf("expected ErrListTableMissing, got %v", err)
	}
}

func TestParseListAllPlaceholders(t *testing.T) {
	t.Parallel()
	c := testClient(t, "https://portal.example/login", "https://portal.example/info")

	// A row whose cells exist but carry none of the expected spans.
	got, err := c.parseList(strings.NewReader(
		`<table id="infoList"><tr><td><a>x</a></td><td></td></tr></table>`))
	if err != nil {
		t.Fatalf("parseList: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(got))
	}
	n := got[0]
	if n.Title != "タイトルなし" || n.Date != "日付なし" || n.Status != "ステータスなし" {
		t.Fatalf("placeholders not applied: %+v", n)
	}
}
