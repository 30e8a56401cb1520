package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/quillforge/quill/internal/models"
	"github.com/quillforge/quill/pkg/logging"
)

type EncyclopediaConfig struct {
	APIURL    string // MediaWiki api.php endpoint
	ProbeURL  string // lightweight liveness endpoint
	Timeout   time.Duration
	RateLimit float64
}

// Encyclopedia retrieves articles through the MediaWiki search API. An
// ambiguous title deterministically falls back to the first candidate the
// disambiguation page links to; missing pages are skipped.
type Encyclopedia struct {
	config  EncyclopediaConfig
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewEncyclopedia(config EncyclopediaConfig) *Encyclopedia {
	if config.APIURL == "" {
		config.APIURL = "https://en.wikipedia.org/w/api.php"
	}
	if config.ProbeURL == "" {
		config.ProbeURL = "https://en.wikipedia.org/api/rest_v1/"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	return &Encyclopedia{
		config:  config,
		client:  newHTTPClient(config.Timeout),
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:     logging.Component("retriever").With().Str("source", "encyclopedia").Logger(),
	}
}

func (e *Encyclopedia) Name() string { return "Encyclopedia" }

func (e *Encyclopedia) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.ProbeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *Encyclopedia) Retrieve(ctx context.Context, query string, maxDocs int) ([]models.Document, error) {
	titles, err := e.search(ctx, query, maxDocs)
	if err != nil {
		e.log.Warn().Err(err).Str("query", query).Msg("search failed")
		return nil, err
	}

	var documents []models.Document
	for _, title := range titles {
		if len(documents) >= maxDocs {
			break
		}

		page, err := e.fetchPage(ctx, title)
		if err != nil {
			e.log.Debug().Err(err).Str("title", title).Msg("skipping page")
			continue
		}
		if page == nil {
			continue
		}
		documents = append(documents, *page)
	}

	return documents, nil
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

func (e *Encyclopedia) search(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {fmt.Sprint(limit)},
		"format":   {"json"},
	}

	var resp searchResponse
	if err := e.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(resp.Query.Search))
	for _, r := range resp.Query.Search {
		titles = append(titles, r.Title)
	}
	return titles, nil
}

type pageResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string `json:"title"`
			Extract   string `json:"extract"`
			FullURL   string `json:"fullurl"`
			Missing   *bool  `json:"missing,omitempty"`
			PageProps struct {
				Disambiguation *string `json:"disambiguation,omitempty"`
			} `json:"pageprops"`
			Links []struct {
				Title string `json:"title"`
			} `json:"links"`
		} `json:"pages"`
	} `json:"query"`
}

// fetchPage loads a page's plain-text extract. A nil document with nil
// error means the page should simply be skipped.
func (e *Encyclopedia) fetchPage(ctx context.Context, title string) (*models.Document, error) {
	return e.fetchPageDepth(ctx, title, 0)
}

func (e *Encyclopedia) fetchPageDepth(ctx context.Context, title string, depth int) (*models.Document, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts|info|pageprops|links"},
		"titles":      {title},
		"explaintext": {"1"},
		"inprop":      {"url"},
		"pllimit":     {"5"},
		"redirects":   {"1"},
		"format":      {"json"},
	}

	var resp pageResponse
	if err := e.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	for _, page := range resp.Query.Pages {
		if page.Missing != nil {
			// Page doesn't exist, skip.
			return nil, nil
		}

		if page.PageProps.Disambiguation != nil {
			// Ambiguous title: follow the first candidate, once.
			if depth > 0 || len(page.Links) == 0 {
				return nil, nil
			}
			doc, err := e.fetchPageDepth(ctx, page.Links[0].Title, depth+1)
			if doc != nil {
				doc.Metadata["disambiguation"] = true
			}
			return doc, err
		}

		content := cleanContent(page.Extract)
		if content == "" {
			return nil, nil
		}

		return &models.Document{
			Title:   page.Title,
			Source:  models.SourceEncyclopedia,
			URL:     page.FullURL,
			Content: capContent(content),
			Metadata: map[string]interface{}{
				"summary":    truncate(content, 200),
				"word_count": len(strings.Fields(content)),
			},
		}, nil
	}

	return nil, nil
}

func (e *Encyclopedia) get(ctx context.Context, params url.Values, out interface{}) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return newError(e.Name(), KindTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return newError(e.Name(), KindHTTP, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return newError(e.Name(), KindHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newError(e.Name(), KindHTTP, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(e.Name(), KindParse, err)
	}
	return nil
}
