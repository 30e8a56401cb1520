package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillforge/quill/internal/models"
)

type fakeRetriever struct {
	name      string
	docs      []models.Document
	err       error
	available bool
}

func (f *fakeRetriever) Name() string { return f.name }

func (f *fakeRetriever) Available(ctx context.Context) bool { return f.available }

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, maxDocs int) ([]models.Document, error) {
	return f.docs, f.err
}

func doc(title string, source models.Source) models.Document {
	return models.Document{Title: title, Source: source, Content: "content for " + title}
}

func TestManagerRetrieveAll(t *testing.T) {
	m := NewManager(
		&fakeRetriever{name: "Encyclopedia", available: true, docs: []models.Document{
			doc("enc-1", models.SourceEncyclopedia),
			doc("enc-2", models.SourceEncyclopedia),
		}},
		&fakeRetriever{name: "Forum", available: true, docs: []models.Document{
			doc("forum-1", models.SourceForum),
		}},
	)

	docs := m.RetrieveAll(context.Background(), "test query", 5)
	assert.Len(t, docs, 3)
}

func TestManagerIsolatesFailingSource(t *testing.T) {
	m := NewManager(
		&fakeRetriever{name: "Encyclopedia", available: true, docs: []models.Document{
			doc("enc-1", models.SourceEncyclopedia),
		}},
		&fakeRetriever{
			name:      "Forum",
			available: true,
			err:       newError("Forum", KindHTTP, errors.New("boom")),
		},
		&fakeRetriever{name: "Article", available: true, docs: []models.Document{
			doc("art-1", models.SourceArticle),
		}},
	)

	docs := m.RetrieveAll(context.Background(), "test query", 5)

	assert.Len(t, docs, 2)
	titles := []string{docs[0].Title, docs[1].Title}
	assert.ElementsMatch(t, []string{"enc-1", "art-1"}, titles)
}

func TestManagerSkipsUnavailableSource(t *testing.T) {
	m := NewManager(
		&fakeRetriever{name: "Encyclopedia", available: false, docs: []models.Document{
			doc("enc-1", models.SourceEncyclopedia),
		}},
		&fakeRetriever{name: "Forum", available: true, docs: []models.Document{
			doc("forum-1", models.SourceForum),
		}},
	)

	docs := m.RetrieveAll(context.Background(), "test query", 5)

	assert.Len(t, docs, 1)
	assert.Equal(t, "forum-1", docs[0].Title)
}

func TestManagerNoSourcesAvailable(t *testing.T) {
	m := NewManager(
		&fakeRetriever{name: "Encyclopedia", available: false},
		&fakeRetriever{name: "Forum", available: false},
	)

	docs := m.RetrieveAll(context.Background(), "test query", 5)
	assert.Empty(t, docs)
}

func TestManagerStatus(t *testing.T) {
	m := NewManager(
		&fakeRetriever{name: "Encyclopedia", available: true},
		&fakeRetriever{name: "Forum", available: false},
		&fakeRetriever{name: "Article", available: true},
	)

	status := m.Status(context.Background())

	assert.Equal(t, map[string]bool{
		"Encyclopedia": true,
		"Forum":        false,
		"Article":      true,
	}, status)
}

func TestManagerSources(t *testing.T) {
	m := NewManager(
		&fakeRetriever{name: "Encyclopedia"},
		&fakeRetriever{name: "Forum"},
	)

	assert.Equal(t, []string{"Encyclopedia", "Forum"}, m.Sources())
}

func TestErrorFormatting(t *testing.T) {
	base := errors.New("connection refused")
	err := newError("Forum", KindHTTP, base)

	assert.Equal(t, "Forum: http: connection refused", err.Error())
	assert.ErrorIs(t, err, base)

	var re *Error
	assert.ErrorAs(t, error(err), &re)
	assert.Equal(t, KindHTTP, re.Kind)
}
