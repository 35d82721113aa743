// Package extract turns downloaded invoice documents into line items:
// NF-e XML is parsed directly, PDF text is sent to a local LLM.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nhle/notafiscal/internal/items"
	"github.com/nhle/notafiscal/internal/model"
)

// ItemSource extracts line items from document text.
type ItemSource interface {
	ExtractItems(ctx context.Context, text string) ([]model.LineItem, error)
}

// Extractor dispatches each document to the XML parser or to the PDF text
// and LLM path.
type Extractor struct {
	llm     ItemSource
	pdfText func(path string) (string, error)
	log     *zap.SugaredLogger
}

// NewExtractor creates an Extractor that sends PDF text to src.
func NewExtractor(src ItemSource, log *zap.SugaredLogger) *Extractor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Extractor{
		llm:     src,
		pdfText: func(path string) (string, error) { return TextFromPDF(path, log) },
		log:     log,
	}
}

// Extract returns the items of one document, labeled with its file name.
// PDFs whose text is shorter than MinTextLength fail with ErrTextTooShort
// without contacting the model.
func (e *Extractor) Extract(
	ctx context.Context, att model.DownloadedAttachment,
) ([]model.LineItem, error) {
	label := documentLabel(att)
	kind := att.Kind
	if kind == "" {
		kind = model.KindFromFilename(att.LocalPath)
	}

	var (
		out []model.LineItem
		err error
	)
	switch kind {
	case model.KindXML:
		out, err = FromXML(att.LocalPath)
	case model.KindPDF:
		out, err = e.fromPDF(ctx, att.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported document type for %s", label)
	}
	if err != nil {
		return nil, err
	}

	for i := range out {
		out[i].DocumentLabel = label
	}
	return out, nil
}

func (e *Extractor) fromPDF(ctx context.Context, path string) ([]model.LineItem, error) {
	text, err := e.pdfText(path)
	if err != nil {
		return nil, err
	}
	if textLen(text) < MinTextLength {
		return nil, fmt.Errorf("%w (%d characters, possibly a scanned image)",
			ErrTextTooShort, textLen(text))
	}
	if e.llm == nil {
		return nil, errors.New("no LLM configured for PDF extraction")
	}
	return e.llm.ExtractItems(ctx, text)
}

func documentLabel(att model.DownloadedAttachment) string {
	if att.Filename != "" {
		return filepath.Base(att.Filename)
	}
	return filepath.Base(att.LocalPath)
}

// BatchResult summarizes one extraction run.
type BatchResult struct {
	// Items holds the distinct items of the batch in document order.
	Items []model.LineItem

	Total     int
	Succeeded int

	// Skipped lists PDFs without a usable text layer.
	Skipped []string

	Failures   []*FileError
	Duplicates int
	Cancelled  bool
}

// Run extracts every document in turn. A failing document is recorded in
// Failures and the batch continues. Cancellation is checked before each
// document and after a document interrupted by it; the items gathered so
// far are kept and Cancelled is set.
// onProgress receives the 1-based index, the batch size and the file name.
func (e *Extractor) Run(
	ctx context.Context,
	atts []model.DownloadedAttachment,
	onProgress func(done, total int, name string),
) *BatchResult {
	res := &BatchResult{Total: len(atts)}
	set := items.NewSet()

	for i, att := range atts {
		if ctx.Err() != nil {
			res.Cancelled = true
			e.log.Infow("extraction cancelled", "processed", i, "total", len(atts))
			break
		}

		name := documentLabel(att)
		if onProgress != nil {
			onProgress(i+1, len(atts), name)
		}

		got, err := e.Extract(ctx, att)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			res.Cancelled = true
			e.log.Infow("extraction cancelled", "processed", i, "total", len(atts))
			break
		}

		switch {
		case errors.Is(err, ErrTextTooShort):
			e.log.Warnw("skipping PDF without text", "file", name)
			res.Skipped = append(res.Skipped, name)
			continue
		case err != nil:
			e.log.Errorw("extraction failed", "file", name, "error", err)
			res.Failures = append(res.Failures, &FileError{Path: name, Err: err})
			continue
		}

		added := set.Add(got...)
		res.Duplicates += len(got) - added
		res.Succeeded++
		e.log.Debugw("document extracted", "file", name, "items", len(got), "new", added)
	}

	res.Items = set.Items()
	return res
}
