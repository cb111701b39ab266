package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// Notice is one row of the announcement list, newest first per portal
// convention. Unparseable fields hold placeholder sentinels; DetailURL
// is empty when the row carries no link.
type Notice struct {
	Title     string
	Date      string
	Status    string
	DetailURL string
}

// FetchList retrieves the announcement list using the active session
// and parses it into document order.
func (c *Client) FetchList(ctx context.Context, sess Session) ([]Notice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ListURL, nil)
	if err != nil {
		return nil, fmt.Errorf("portal: build list request: %w", err)
	}
	req.Header.Set("Cookie", sess.Cookie)
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal: fetch list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal: list fetch returned status %d", resp.StatusCode)
	}
	return c.parseList(resp.Body)
}

// parseList walks the fixed-id notice table. Row shape: first cell
// holds title and date in its 2nd and 3rd child spans, second cell
// holds status in its 2nd child span, and the row's data-href (if any)
// is the detail link. Rows without cells are layout chrome and skipped.
func (c *Client) parseList(r io.Reader) ([]Notice, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("portal: parse list page: %w", err)
	}

	table := dom.GetElementByID(doc, "infoList")
	if table == nil {
		return nil, ErrListTableMissing
	}

	var notices []Notice
	for _, row := range dom.GetElementsByTagName(table, "tr") {
		cells := dom.GetElementsByTagName(row, "td")
		if len(cells) == 0 {
			continue
		}

		title := nthChildSpanText(cells[0], 2)
		if title == "" {
			title = placeholderTitle
		}
		date := nthChildSpanText(cells[0], 3)
		if date == "" {
			date = placeholderDate
		}
		status := ""
		if len(cells) > 1 {
			status = nthChildSpanText(cells[1], 2)
		}
		if status == "" {
			status = placeholderStatus
		}

		notices = append(notices, Notice{
			Title:     title,
			Date:      date,
			Status:    status,
			DetailURL: c.resolveURL(dom.GetAttribute(row, "data-href")),
		})
	}
	return notices, nil
}

// nthChildSpanText returns the trimmed text of the n-th (1-based)
// element child, provided that child is a <span>. Anything else yields
// "" and the caller substitutes the field's placeholder.
func nthChildSpanText(node *html.Node, n int) string {
	kids := dom.Children(node)
	if n < 1 || n > len(kids) {
		return ""
	}
	k := kids[n-1]
	if !strings.EqualFold(dom.TagName(k), "span") {
		return ""
	}
	return strings.TrimSpace(dom.TextContent(k))
}
