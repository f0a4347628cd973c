// Package classifier extracts links from HTML and sorts them into product
// pages and same-site pages worth following.
package classifier

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// productAttributeSelector matches elements that identify a product without
// relying on the URL shape.
const productAttributeSelector = "[data-product-id],[data-item-id],[data-sku]"

var productPatterns = compile(
	`/products?/[^/]+`,
	`/items?/[^/]+`,
	`/p(?:-|\d+)`,
	`/shop/[^/]+`,
	`/catalog/[^/]+`,
	`/detail/[^/]+`,
	`/buy/[^/]+`,
	`/item/[^/]+`,
	`/product-detail/[^/]+`,
	`/fashion/[^/]+`,
	`/clothing/[^/]+`,
	`/accessories/[^/]+`,
	`/p/[^/]+`,
	`/makeup/[^/]+`,
	`/skincare/[^/]+`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// IsProductURL reports whether any product path pattern matches rawURL.
func IsProductURL(rawURL string) bool {
	for _, re := range productPatterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Links are the raw hrefs found on a page.
type Links struct {
	// Hrefs holds every anchor href in document order.
	Hrefs []string
	// AttributeHrefs holds hrefs of anchors enclosing product-attribute elements.
	AttributeHrefs []string
}

// Result is the outcome of classifying one page's links.
type Result struct {
	ProductURLs   []string
	InternalLinks []string
}

// VisitedChecker reports whether a URL was already entered by the traversal.
type VisitedChecker interface {
	Has(rawURL string) bool
}

// Extract parses html and collects anchor and product-attribute hrefs.
func Extract(html []byte) (Links, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Links{}, fmt.Errorf("parse html: %w", err)
	}

	var links Links
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links.Hrefs = append(links.Hrefs, href)
		}
	})
	doc.Find(productAttributeSelector).Each(func(_ int, s *goquery.Selection) {
		// Closest includes the element itself.
		if href, ok := s.Closest("a").Attr("href"); ok {
			links.AttributeHrefs = append(links.AttributeHrefs, href)
		}
	})
	return links, nil
}

// Classifier resolves and classifies hrefs.
type Classifier struct {
	logger *zap.Logger
}

// New builds a Classifier. logger may be nil.
func New(logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{logger: logger}
}

// Classify resolves links against baseOrigin. Product URLs come first from
// pattern matches then from product-attribute anchors; internal links are
// same-origin, non-product and not yet visited. Both lists are deduplicated
// and keep discovery order.
func (c *Classifier) Classify(baseOrigin string, links Links, visited VisitedChecker) (Result, error) {
	base, err := url.Parse(baseOrigin)
	if err != nil {
		return Result{}, fmt.Errorf("parse base origin: %w", err)
	}
	origin, err := crawler.Origin(baseOrigin)
	if err != nil {
		return Result{}, err
	}

	var res Result
	seenProduct := map[string]struct{}{}
	seenInternal := map[string]struct{}{}
	addProduct := func(u string) {
		if _, ok := seenProduct[u]; ok {
			return
		}
		seenProduct[u] = struct{}{}
		res.ProductURLs = append(res.ProductURLs, u)
	}

	for _, href := range links.Hrefs {
		abs, ok := c.resolve(base, href)
		if !ok {
			continue
		}
		if IsProductURL(abs) {
			addProduct(abs)
			continue
		}
		if o, err := crawler.Origin(abs); err != nil || o != origin {
			continue
		}
		if visited != nil && visited.Has(abs) {
			continue
		}
		if _, ok := seenInternal[abs]; ok {
			continue
		}
		seenInternal[abs] = struct{}{}
		res.InternalLinks = append(res.InternalLinks, abs)
	}

	for _, href := range links.AttributeHrefs {
		if abs, ok := c.resolve(base, href); ok {
			addProduct(abs)
		}
	}
	return res, nil
}

func (c *Classifier) resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		c.logger.Debug("skipping malformed href", zap.String("href", href), zap.Error(err))
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), true
}
