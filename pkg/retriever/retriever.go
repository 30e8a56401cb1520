// Package retriever fetches raw documents for a query from external
// corpora: an encyclopedia, a discussion forum and an article site. Each
// retriever absorbs its own failures; a broken source contributes nothing
// instead of breaking the batch.
package retriever

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
)

// maxContentLength caps document content before it is returned.
const maxContentLength = 2000

const defaultUserAgent = "quill/1.0 (+https://github.com/quillforge/quill)"

// ErrorKind categorizes retrieval failures so tests and logs can tell
// them apart.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable"
	KindHTTP        ErrorKind = "http"
	KindParse       ErrorKind = "parse"
	KindTimeout     ErrorKind = "timeout"
)

// Error is a categorized retrieval failure from one source.
type Error struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(source string, kind ErrorKind, err error) *Error {
	return &Error{Source: source, Kind: kind, Err: err}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// cleanContent collapses whitespace and strips characters outside a safe
// punctuation set, shared by all retrievers before content is returned.
func cleanContent(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case strings.ContainsRune(`.,!?;:()-"'`, r):
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}

// capContent bounds content length without splitting a word mid-rune.
func capContent(text string) string {
	if len(text) <= maxContentLength {
		return text
	}
	cut := text[:maxContentLength]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}
