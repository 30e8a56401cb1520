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

const (
	forumMinScore       = 5
	forumMinComments    = 2
	forumMinTitleLength = 10
	forumCommentCount   = 3
)

type ForumConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// Forum retrieves discussion posts through Reddit's public JSON
// endpoints, searching across all communities by relevance and filtering
// out low-engagement results before capping the batch.
type Forum struct {
	config  ForumConfig
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewForum(config ForumConfig) *Forum {
	if config.BaseURL == "" {
		config.BaseURL = "https://www.reddit.com"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1
	}

	return &Forum{
		config:  config,
		client:  newHTTPClient(config.Timeout),
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:     logging.Component("retriever").With().Str("source", "forum").Logger(),
	}
}

func (f *Forum) Name() string { return "Forum" }

func (f *Forum) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.BaseURL+"/search.json?q=test&limit=1", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type forumListing struct {
	Data struct {
		Children []struct {
			Data forumPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type forumPost struct {
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	UpvoteRatio float64 `json:"upvote_ratio"`
}

func (f *Forum) Retrieve(ctx context.Context, query string, maxDocs int) ([]models.Document, error) {
	posts, err := f.search(ctx, query, maxDocs)
	if err != nil {
		f.log.Warn().Err(err).Str("query", query).Msg("search failed")
		return nil, err
	}

	var documents []models.Document
	for _, post := range posts {
		content := post.Title
		if post.SelfText != "" {
			content += "\n\n" + post.SelfText
		}

		if comments := f.topComments(ctx, post.Permalink); len(comments) > 0 {
			content += "\n\nTop Comments:\n" + strings.Join(comments, "\n")
		}

		author := post.Author
		if author == "" {
			author = "[deleted]"
		}

		clean := capContent(cleanContent(content))
		documents = append(documents, models.Document{
			Title:   post.Title,
			Source:  models.SourceForum,
			URL:     f.config.BaseURL + post.Permalink,
			Content: clean,
			Score:   float64(post.Score),
			Metadata: map[string]interface{}{
				"subreddit":    post.Subreddit,
				"score":        post.Score,
				"num_comments": post.NumComments,
				"created_utc":  post.CreatedUTC,
				"author":       author,
				"upvote_ratio": post.UpvoteRatio,
				"word_count":   len(strings.Fields(clean)),
			},
		})
	}

	return documents, nil
}

// search queries across all communities and filters out low-engagement
// posts before capping at maxDocs.
func (f *Forum) search(ctx context.Context, query string, maxDocs int) ([]forumPost, error) {
	params := url.Values{
		"q":        {query},
		"sort":     {"relevance"},
		"limit":    {fmt.Sprint(maxDocs * 2)}, // fetch extra to survive filtering
		"raw_json": {"1"},
	}

	var listing forumListing
	if err := f.get(ctx, f.config.BaseURL+"/search.json?"+params.Encode(), &listing); err != nil {
		return nil, err
	}

	var posts []forumPost
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Score <= forumMinScore ||
			post.NumComments <= forumMinComments ||
			len(post.Title) <= forumMinTitleLength {
			continue
		}
		posts = append(posts, post)
		if len(posts) >= maxDocs {
			break
		}
	}
	return posts, nil
}

type commentListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Body string `json:"body"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// topComments fetches up to three substantial comment excerpts for a
// post. Best effort: any failure yields no comments.
func (f *Forum) topComments(ctx context.Context, permalink string) []string {
	var listings []commentListing
	url := strings.TrimSuffix(f.config.BaseURL+permalink, "/") + ".json?limit=10&raw_json=1"
	if err := f.get(ctx, url, &listings); err != nil {
		f.log.Debug().Err(err).Str("permalink", permalink).Msg("could not fetch comments")
		return nil
	}
	if len(listings) < 2 {
		return nil
	}

	var comments []string
	for _, child := range listings[1].Data.Children {
		body := child.Data.Body
		if len(body) > 20 {
			comments = append(comments, truncate(body, 200))
		}
		if len(comments) >= forumCommentCount {
			break
		}
	}
	return comments
}

func (f *Forum) get(ctx context.Context, url string, out interface{}) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return newError(f.Name(), KindTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return newError(f.Name(), KindHTTP, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return newError(f.Name(), KindHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newError(f.Name(), KindHTTP, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(f.Name(), KindParse, err)
	}
	return nil
}
