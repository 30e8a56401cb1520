package retriever

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/pkg/logging"
)

// fallbackTopics are article-site topic pages scanned when the search
// engine yields no candidate links.
var fallbackTopics = []string{
	"technology",
	"programming",
	"data-science",
	"artificial-intelligence",
	"startup",
}

type ArticleConfig struct {
	BaseURL   string // article site root, also used for liveness checks
	SearchURL string // search engine endpoint for site-scoped queries
	Timeout   time.Duration
	RateLimit float64
}

// Article retrieves long-form posts from an article site by scraping. It
// discovers candidate URLs through a site-scoped search-engine query and
// falls back to the site's topic pages when the search yields nothing.
type Article struct {
	config  ArticleConfig
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewArticle(config ArticleConfig) *Article {
	if config.BaseURL == "" {
		config.BaseURL = "https://medium.com"
	}
	if config.SearchURL == "" {
		config.SearchURL = "https://www.google.com/search"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1
	}

	return &Article{
		config:  config,
		client:  newHTTPClient(config.Timeout),
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:     logging.Component("retriever").With().Str("source", "article").Logger(),
	}
}

func (a *Article) Name() string { return "Article" }

func (a *Article) Available(ctx context.Context) bool {
	doc, err := a.fetch(ctx, a.config.BaseURL)
	return err == nil && doc != nil
}

type articleCandidate struct {
	url   string
	title string
}

func (a *Article) Retrieve(ctx context.Context, query string, maxDocs int) ([]models.Document, error) {
	candidates, err := a.search(ctx, query, maxDocs)
	if err != nil {
		a.log.Warn().Err(err).Str("query", query).Msg("search failed")
		return nil, err
	}
	if len(candidates) == 0 {
		candidates = a.topicFallback(ctx, maxDocs)
	}

	var documents []models.Document
	for _, candidate := range candidates {
		if len(documents) >= maxDocs {
			break
		}

		doc, err := a.fetchArticle(ctx, candidate)
		if err != nil {
			a.log.Debug().Err(err).Str("url", candidate.url).Msg("skipping article")
			continue
		}
		if doc == nil {
			continue
		}
		documents = append(documents, *doc)
	}

	return documents, nil
}

// search runs a site-scoped search-engine query and collects article
// links out of the result page.
func (a *Article) search(ctx context.Context, query string, maxResults int) ([]articleCandidate, error) {
	host := hostOf(a.config.BaseURL)
	searchURL := a.config.SearchURL + "?" + url.Values{
		"q": {fmt.Sprintf("site:%s %s", host, query)},
	}.Encode()

	page, err := a.fetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var candidates []articleCandidate
	page.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		link := extractResultLink(href, host)
		if link == "" || seen[link] {
			return true
		}

		title := strings.TrimSpace(sel.Text())
		if len(title) <= 10 {
			return true
		}

		seen[link] = true
		candidates = append(candidates, articleCandidate{url: link, title: title})
		return len(candidates) < maxResults
	})

	return candidates, nil
}

// topicFallback scans the site's fixed topic pages for article links
// when the search engine produced nothing usable.
func (a *Article) topicFallback(ctx context.Context, maxResults int) []articleCandidate {
	host := hostOf(a.config.BaseURL)
	seen := make(map[string]bool)
	var candidates []articleCandidate

	for _, topic := range fallbackTopics {
		if len(candidates) >= maxResults {
			break
		}

		page, err := a.fetch(ctx, a.config.BaseURL+"/topic/"+topic)
		if err != nil {
			a.log.Debug().Err(err).Str("topic", topic).Msg("topic page unavailable")
			continue
		}

		page.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			if strings.HasPrefix(href, "/") {
				href = a.config.BaseURL + href
			}
			if !strings.Contains(href, host) || !strings.Contains(href, "@") || seen[href] {
				return true
			}

			title := strings.TrimSpace(sel.Text())
			if len(title) <= 20 {
				return true
			}

			seen[href] = true
			candidates = append(candidates, articleCandidate{url: href, title: title})
			return len(candidates) < maxResults
		})
	}

	return candidates
}

// fetchArticle loads one article page and extracts its text and
// byline metadata. A nil document with nil error means the page had no
// recognizable article body and should be skipped.
func (a *Article) fetchArticle(ctx context.Context, candidate articleCandidate) (*models.Document, error) {
	page, err := a.fetch(ctx, candidate.url)
	if err != nil {
		return nil, err
	}

	body := page.Find("article").First()
	if body.Length() == 0 {
		body = page.Find("div[class*='postArticle']").First()
	}
	if body.Length() == 0 {
		body = page.Find("div[class*='section-content']").First()
	}
	if body.Length() == 0 {
		return nil, nil
	}

	var parts []string
	body.Find("p, h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	content := cleanContent(strings.Join(parts, " "))
	if content == "" {
		return nil, nil
	}

	author := strings.TrimSpace(page.Find("a[class*='author'], span[class*='author']").First().Text())
	if author == "" {
		author = "Unknown"
	}
	publication := strings.TrimSpace(page.Find("a[class*='publication']").First().Text())
	readTime := strings.TrimSpace(page.Find("span[class*='readingTime']").First().Text())

	clean := capContent(content)
	return &models.Document{
		Title:   candidate.title,
		Source:  models.SourceArticle,
		URL:     candidate.url,
		Content: clean,
		Metadata: map[string]interface{}{
			"author":      author,
			"publication": publication,
			"read_time":   readTime,
			"word_count":  len(strings.Fields(clean)),
			"scraped":     true,
		},
	}, nil
}

func (a *Article) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, newError(a.Name(), KindTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, newError(a.Name(), KindHTTP, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, newError(a.Name(), KindHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newError(a.Name(), KindHTTP, fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, newError(a.Name(), KindParse, err)
	}
	return doc, nil
}

// extractResultLink pulls the destination URL out of a search-engine
// result anchor, handling both direct and redirect-wrapped hrefs.
func extractResultLink(href, host string) string {
	if href == "" || !strings.Contains(href, host) {
		return ""
	}
	if i := strings.Index(href, "/url?q="); i >= 0 {
		href = href[i+len("/url?q="):]
		if j := strings.IndexByte(href, '&'); j >= 0 {
			href = href[:j]
		}
	}
	if !strings.HasPrefix(href, "http") || !strings.Contains(href, host) {
		return ""
	}
	return href
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
