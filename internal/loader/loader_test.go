package loader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForName(t *testing.T) {
	tests := []struct {
		name string
		want any
	}{
		{"paper.pdf", PDF{}},
		{"Notes.PDF", PDF{}},
		{"readme.txt", Text{}},
		{"page.html", HTML{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ForName(tt.name)
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}

	_, err := ForName("slides.pptx")
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestText_Load(t *testing.T) {
	body := "first line\nsecond line"
	pages, err := Text{}.Load(context.Background(), strings.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, body, pages[0].Text)
}

func TestHTML_Load(t *testing.T) {
	body := "<html><body><h1>Title</h1><p>Hello there.</p></body></html>"
	pages, err := HTML{}.Load(context.Background(), strings.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "Hello there.")
}

func TestPageNumber(t *testing.T) {
	assert.Equal(t, 3, pageNumber(map[string]any{"page": 3}))
	assert.Equal(t, 2, pageNumber(map[string]any{"page": float64(2)}))
	assert.Equal(t, 0, pageNumber(map[string]any{}))
}
