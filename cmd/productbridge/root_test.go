package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/pipeline"
	"github.com/productbridge/productbridge/internal/validation"
)

type fakeExtractor struct {
	text string
	file validation.FileInput
	url  string
	err  error
}

func (f *fakeExtractor) result() pipeline.Extraction {
	return pipeline.Extraction{
		Extracted: models.ProductContent{
			Specs:      []models.SpecGroup{},
			Highlights: []string{"Dual card slots"},
			Included:   []models.IncludedItem{},
			Featured:   []models.FeaturedSpec{},
		},
		Source: models.TextSource(80),
	}
}

func (f *fakeExtractor) ExtractText(ctx context.Context, raw string) (pipeline.Extraction, error) {
	f.text = raw
	return f.result(), f.err
}

func (f *fakeExtractor) ExtractPDF(ctx context.Context, file validation.FileInput) (pipeline.Extraction, error) {
	f.file = file
	return f.result(), f.err
}

func (f *fakeExtractor) ExtractURL(ctx context.Context, rawURL string) (pipeline.Extraction, error) {
	f.url = rawURL
	return f.result(), f.err
}

func runCmd(t *testing.T, fake *fakeExtractor, stdin string, args ...string) (string, string, error) {
	t.Helper()

	released := false
	build := func(ctx context.Context, verbose bool) (extractor, func(), error) {
		return fake, func() { released = true }, nil
	}

	cmd := newRootCmd(build)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	if fake.text != "" || fake.url != "" || fake.file.Name != "" {
		assert.True(t, released, "pipeline released after run")
	}
	return stdout.String(), stderr.String(), err
}

func TestExtractTextFromStdin(t *testing.T) {
	fake := &fakeExtractor{}
	stdout, _, err := runCmd(t, fake, "Mirrorless camera with dual card slots", "extract", "text")
	require.NoError(t, err)

	assert.Equal(t, "Mirrorless camera with dual card slots", fake.text)

	var out pipeline.Extraction
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, []string{"Dual card slots"}, out.Extracted.Highlights)
}

func TestExtractTextFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.txt")
	require.NoError(t, os.WriteFile(path, []byte("Lens mount: RF"), 0o600))

	fake := &fakeExtractor{}
	_, _, err := runCmd(t, fake, "", "extract", "text", path)
	require.NoError(t, err)
	assert.Equal(t, "Lens mount: RF", fake.text)
}

func TestExtractPDFReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasheet.PDF")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o600))

	fake := &fakeExtractor{}
	_, _, err := runCmd(t, fake, "", "extract", "pdf", path)
	require.NoError(t, err)

	assert.Equal(t, "datasheet.PDF", fake.file.Name)
	assert.Equal(t, "application/pdf", fake.file.MIMEType)
	assert.Equal(t, int64(8), fake.file.Size)
}

func TestExtractURLUserError(t *testing.T) {
	fake := &fakeExtractor{err: models.NewUserError(models.CodeURLBlockedHost, "That address is not allowed.")}
	stdout, stderr, err := runCmd(t, fake, "", "extract", "url", "http://localhost/admin")
	require.Error(t, err)

	assert.Equal(t, "http://localhost/admin", fake.url)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, `"code": "url.blocked_host"`)
}

func TestExtractPDFRequiresPath(t *testing.T) {
	_, _, err := runCmd(t, &fakeExtractor{}, "", "extract", "pdf")
	assert.Error(t, err)
}
