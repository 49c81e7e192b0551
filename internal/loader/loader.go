// Package loader extracts text from uploaded documents.
package loader

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"

	"papermind/internal/domain"
)

// ErrUnsupported is returned for file types no loader handles.
var ErrUnsupported = errors.New("unsupported document type")

// ForName picks a loader from the display name's extension.
func ForName(name string) (domain.Loader, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return PDF{}, nil
	case ".txt", ".md", "":
		return Text{}, nil
	case ".html", ".htm":
		return HTML{}, nil
	default:
		return nil, errors.Wrap(ErrUnsupported, name)
	}
}

// PDF extracts one Page per PDF page.
type PDF struct{}

func (PDF) Load(ctx context.Context, r io.ReaderAt, size int64) ([]domain.Page, error) {
	docs, err := documentloaders.NewPDF(r, size).Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load pdf")
	}
	return toPages(docs), nil
}

// Text treats the whole input as one page.
type Text struct{}

func (Text) Load(ctx context.Context, r io.ReaderAt, size int64) ([]domain.Page, error) {
	docs, err := documentloaders.NewText(io.NewSectionReader(r, 0, size)).Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load text")
	}
	return toPages(docs), nil
}

// HTML extracts the visible text of a page.
type HTML struct{}

func (HTML) Load(ctx context.Context, r io.ReaderAt, size int64) ([]domain.Page, error) {
	docs, err := documentloaders.NewHTML(io.NewSectionReader(r, 0, size)).Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load html")
	}
	return toPages(docs), nil
}

func toPages(docs []schema.Document) []domain.Page {
	pages := make([]domain.Page, 0, len(docs))
	for _, d := range docs {
		pages = append(pages, domain.Page{Number: pageNumber(d.Metadata), Text: d.PageContent})
	}
	return pages
}

func pageNumber(md map[string]any) int {
	switch v := md["page"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
