package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/notafiscal/internal/model"
)

// stubSource returns canned items per text and counts calls.
type stubSource struct {
	byText map[string][]model.LineItem
	err    error
	calls  int
}

func (s *stubSource) ExtractItems(_ context.Context, text string) ([]model.LineItem, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byText[text], nil
}

func newTestExtractor(src ItemSource, texts map[string]string) *Extractor {
	e := NewExtractor(src, zap.NewNop().Sugar())
	e.pdfText = func(path string) (string, error) {
		t, ok := texts[filepath.Base(path)]
		if !ok {
			return "", errors.New("not a PDF")
		}
		return t, nil
	}
	return e
}

func TestExtractor_Extract(t *testing.T) {
	pdfText := strings.Repeat("DANFE item ", 10)
	src := &stubSource{byText: map[string][]model.LineItem{
		pdfText: {{Description: "Cabo", Quantity: 1, UnitValue: 9, TotalValue: 9}},
	}}
	e := newTestExtractor(src, map[string]string{"danfe.pdf": pdfText})

	xmlPath := writeFile(t, "nota.xml", nfeDocument)
	got, err := e.Extract(context.Background(), model.DownloadedAttachment{
		Filename: "nota.xml", Kind: model.KindXML, LocalPath: xmlPath,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "nota.xml", got[0].DocumentLabel)

	got, err = e.Extract(context.Background(), model.DownloadedAttachment{
		LocalPath: "/staging/danfe.pdf",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "danfe.pdf", got[0].DocumentLabel)
	assert.Equal(t, 1, src.calls)
}

func TestExtractor_ShortPDFSkipsModel(t *testing.T) {
	src := &stubSource{}
	e := newTestExtractor(src, map[string]string{"scan.pdf": "  pg 1 "})

	_, err := e.Extract(context.Background(), model.DownloadedAttachment{
		Filename: "scan.pdf", Kind: model.KindPDF, LocalPath: "/tmp/scan.pdf",
	})
	assert.ErrorIs(t, err, ErrTextTooShort)
	assert.Zero(t, src.calls)
}

func TestExtractor_Run(t *testing.T) {
	goodText := strings.Repeat("nota fiscal ", 10)
	badText := strings.Repeat("ilegivel ", 10)
	dup := model.LineItem{Description: "Cabo", Quantity: 1, UnitValue: 2, TotalValue: 2}

	src := &stubSource{byText: map[string][]model.LineItem{
		goodText: {dup, {Description: " cabo ", Quantity: 1, UnitValue: 2, TotalValue: 2}},
	}}
	e := newTestExtractor(src, map[string]string{
		"good.pdf": goodText,
		"scan.pdf": "",
		"bad.pdf":  badText,
	})
	failing := &stubSource{err: &MalformedResponseError{Reason: "zero items"}}

	xmlPath := writeFile(t, "nota.xml", nfeDocument)
	atts := []model.DownloadedAttachment{
		{Filename: "nota.xml", Kind: model.KindXML, LocalPath: xmlPath},
		{Filename: "good.pdf", Kind: model.KindPDF, LocalPath: "/s/good.pdf"},
		{Filename: "scan.pdf", Kind: model.KindPDF, LocalPath: "/s/scan.pdf"},
		{Filename: "broken.xml", Kind: model.KindXML, LocalPath: filepath.Join(t.TempDir(), "broken.xml")},
		{Filename: "notes.txt", LocalPath: "/s/notes.txt"},
	}

	var names []string
	res := e.Run(context.Background(), atts, func(done, total int, name string) {
		assert.Equal(t, len(atts), total)
		names = append(names, name)
	})

	assert.Equal(t, []string{"nota.xml", "good.pdf", "scan.pdf", "broken.xml", "notes.txt"}, names)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, []string{"scan.pdf"}, res.Skipped)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "broken.xml", res.Failures[0].Path)
	assert.Equal(t, "notes.txt", res.Failures[1].Path)
	assert.Equal(t, 1, res.Duplicates)
	assert.Len(t, res.Items, 3)
	assert.False(t, res.Cancelled)

	// A model failure is a per-file failure too.
	e.llm = failing
	res = e.Run(context.Background(), []model.DownloadedAttachment{
		{Filename: "bad.pdf", Kind: model.KindPDF, LocalPath: "/s/bad.pdf"},
	}, nil)
	require.Len(t, res.Failures, 1)
	assert.True(t, IsMalformedResponse(res.Failures[0]))
}

func TestExtractor_RunCancelled(t *testing.T) {
	e := newTestExtractor(&stubSource{}, nil)
	xmlPath := writeFile(t, "nota.xml", nfeDocument)
	atts := []model.DownloadedAttachment{
		{Filename: "a.xml", Kind: model.KindXML, LocalPath: xmlPath},
		{Filename: "b.xml", Kind: model.KindXML, LocalPath: xmlPath},
		{Filename: "c.xml", Kind: model.KindXML, LocalPath: xmlPath},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := e.Run(ctx, atts, func(done, _ int, _ string) {
		if done == 1 {
			cancel()
		}
	})

	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "a.xml", res.Items[0].DocumentLabel)
}

// cancellingSource cancels the batch while the model call is in flight.
type cancellingSource struct {
	cancel context.CancelFunc
}

func (s *cancellingSource) ExtractItems(ctx context.Context, _ string) ([]model.LineItem, error) {
	s.cancel()
	<-ctx.Done()
	return nil, fmt.Errorf("calling LLM: %w", ctx.Err())
}

func TestExtractor_RunCancelledDuringModelCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	text := strings.Repeat("nota fiscal ", 10)
	e := newTestExtractor(&cancellingSource{cancel: cancel},
		map[string]string{"a.pdf": text, "b.pdf": text})
	xmlPath := writeFile(t, "nota.xml", nfeDocument)

	res := e.Run(ctx, []model.DownloadedAttachment{
		{Filename: "nota.xml", Kind: model.KindXML, LocalPath: xmlPath},
		{Filename: "a.pdf", Kind: model.KindPDF, LocalPath: "/s/a.pdf"},
		{Filename: "b.pdf", Kind: model.KindPDF, LocalPath: "/s/b.pdf"},
	}, nil)

	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 1, res.Succeeded)
	assert.Len(t, res.Items, 2)
}
