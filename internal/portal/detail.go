package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"

	"github.com/go-shiori/dom"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"manawatch/internal/pacer"
	logx "manawatch/pkg/logx"
)

// Detail is the outcome of one detail page fetch. Err is set when the
// fetch or extraction failed; the batch keeps going regardless.
type Detail struct {
	URL  string
	Text string
	Err  error
}

const (
	detailTitleID = "info_detail_title"
	detailBodyID  = "info_detail_body"
)

var breakRemnants = strings.NewReplacer("<br>", "", "<br/>", "", "<br />", "")

// FetchDetails retrieves detail pages one at a time, pacing after every
// request whether it succeeded or not. A failing URL is recorded and
// does not abort the rest of the batch.
func (c *Client) FetchDetails(ctx context.Context, sess Session, urls []string, p pacer.Pacer) []Detail {
	out := make([]Detail, 0, len(urls))
	for _, u := range urls {
		text, err := c.FetchDetail(ctx, sess, u)
		if err != nil {
			c.log.Warn("detail fetch failed", logx.String("url", u), logx.Err(err))
			out = append(out, Detail{URL: u, Err: err})
		} else {
			out = append(out, Detail{URL: u, Text: text})
		}
		if err := p.Wait(ctx); err != nil {
			return out
		}
	}
	return out
}

// FetchDetail retrieves one detail page and extracts its title and body
// as plain text. When the fixed-id body element is missing the page is
// handed to readability instead of failing the item.
func (c *Client) FetchDetail(ctx context.Context, sess Session, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("portal: build detail request: %w", err)
	}
	req.Header.Set("Cookie", sess.Cookie)
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("portal: fetch detail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("portal: detail fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("portal: read detail body: %w", err)
	}
	return c.extractDetail(body, rawURL)
}

func (c *Client) extractDetail(page []byte, rawURL string) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("portal: parse detail page: %w", err)
	}

	var bodyText string
	if bodyNode := dom.GetElementByID(doc, detailBodyID); bodyNode != nil {
		bodyText = breakRemnants.Replace(dom.TextContent(bodyNode))
	} else {
		// Unknown page shape; pull readable text instead of failing.
		pageURL, _ := neturl.Parse(rawURL)
		article, rerr := readability.FromReader(bytes.NewReader(page), pageURL)
		if rerr != nil {
			return "", fmt.Errorf("portal: extract detail text: %w", rerr)
		}
		bodyText = article.TextContent
	}
	bodyText = strings.TrimSpace(bodyText)

	if titleNode := dom.GetElementByID(doc, detailTitleID); titleNode != nil {
		title := collapseSpaces(dom.TextContent(titleNode))
		if title != "" {
			return "【" + title + "】\n" + bodyText, nil
		}
	}
	return bodyText, nil
}

// collapseSpaces folds internal whitespace runs into single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
