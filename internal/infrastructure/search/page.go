package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var imageMetaSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
	`link[rel="image_src"]`,
}

// pageImage fetches a result page and returns its preview image, resolved against the page URL.
func (g *GoogleSearcher) pageImage(ctx context.Context, pageURL string) (string, error) {
	doc, err := g.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}

	for _, sel := range imageMetaSelectors {
		node := doc.Find(sel).First()
		value, ok := node.Attr("content")
		if !ok {
			value, ok = node.Attr("href")
		}
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		return resolveURL(pageURL, value)
	}

	return "", fmt.Errorf("no preview image on %s", pageURL)
}

func (g *GoogleSearcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "CompetitionScanner/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid page url %s: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image url %s: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
