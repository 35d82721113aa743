package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// MinTextLength is the number of characters below which a document's text
// is considered missing (typically a scanned, image-only PDF).
const MinTextLength = 50

// TextFromPDF extracts the text layer of a PDF. The plain-text reader is
// tried first; when it yields fewer than MinTextLength characters the page
// content streams are decoded instead. The longer result is returned. The
// text may still be short or empty; an error is returned only when neither
// method can read the file.
func TextFromPDF(path string, log *zap.SugaredLogger) (string, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	primary, perr := plainText(path)
	if perr != nil {
		log.Debugw("plain text extraction failed", "file", filepath.Base(path), "error", perr)
	}
	if textLen(primary) >= MinTextLength {
		log.Debugw("PDF text extracted", "file", filepath.Base(path), "chars", len(primary), "method", "plain")
		return primary, nil
	}

	secondary, serr := contentStreamText(path)
	if serr != nil {
		log.Debugw("content stream extraction failed", "file", filepath.Base(path), "error", serr)
	}
	if perr != nil && serr != nil {
		return "", fmt.Errorf("reading PDF %s: %w", filepath.Base(path), errors.Join(perr, serr))
	}

	text := primary
	if textLen(secondary) > textLen(primary) {
		text = secondary
	}
	if textLen(text) < MinTextLength {
		log.Warnw("PDF has little or no text, it may be a scanned image",
			"file", filepath.Base(path), "chars", textLen(text))
	}
	return text, nil
}

func textLen(s string) int {
	return len([]rune(strings.TrimSpace(s)))
}

// plainText uses the ledongthuc/pdf reader. It recovers from panics the
// reader raises on damaged cross-reference tables.
func plainText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return cleanText(buf.String()), nil
}

// contentStreamText dumps every page content stream with pdfcpu and keeps
// the strings shown by text operators.
func contentStreamText(path string) (string, error) {
	conf := pdfmodel.NewDefaultConfiguration()

	outDir, err := os.MkdirTemp("", "notafiscal-pdf-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("extracting content streams: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(outDir, "*.txt"))
	if err != nil {
		return "", err
	}
	sort.Strings(files)

	var pages []string
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return "", err
		}
		if t := showText(data); t != "" {
			pages = append(pages, t)
		}
	}
	return cleanText(strings.Join(pages, "\n")), nil
}

// showText collects literal strings operated on by Tj, TJ, ' and ". Line
// breaks are emitted for T*, Td, TD, ', " and ET. Hex strings are skipped;
// they usually address glyphs of embedded fonts rather than characters.
func showText(stream []byte) string {
	var out strings.Builder
	var pending []string
	newline := func() {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteByte('\n')
		}
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '(':
			s, next := literalString(stream, i)
			pending = append(pending, s)
			i = next
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case isOperatorByte(c):
			j := i
			for j < len(stream) && isOperatorByte(stream[j]) {
				j++
			}
			switch op := string(stream[i:j]); op {
			case "Tj", "TJ":
				out.WriteString(strings.Join(pending, ""))
			case "'", "\"":
				newline()
				out.WriteString(strings.Join(pending, ""))
			case "T*", "Td", "TD", "ET":
				newline()
			}
			pending = pending[:0]
			i = j
		default:
			i++
		}
	}
	return strings.TrimSpace(out.String())
}

func isOperatorByte(c byte) bool {
	return c == '*' || c == '\'' || c == '"' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// literalString decodes a PDF literal string starting at the opening
// parenthesis at i and returns the index after its closing parenthesis.
func literalString(b []byte, i int) (string, int) {
	var sb strings.Builder
	depth := 0
	for i < len(b) {
		c := b[i]
		switch c {
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
		case '\\':
			i++
			if i >= len(b) {
				break
			}
			switch e := b[i]; e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// Line continuation.
			default:
				if e >= '0' && e <= '7' {
					v := 0
					n := 0
					for n < 3 && i < len(b) && b[i] >= '0' && b[i] <= '7' {
						v = v*8 + int(b[i]-'0')
						i++
						n++
					}
					i--
					sb.WriteRune(rune(v & 0xff))
				} else {
					sb.WriteByte(e)
				}
			}
		default:
			sb.WriteByte(c)
		}
		i++
	}
	return sb.String(), i
}

// cleanText keeps printable characters plus newline, carriage return and
// tab, and trims surrounding whitespace.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(s)
}
