package extract

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message/charset"

	"github.com/nhle/notafiscal/internal/model"
)

// NFeNamespace is the XML namespace of Brazilian electronic invoices.
const NFeNamespace = "http://www.portalfiscal.inf.br/nfe"

// nfeProd is the <prod> group of one <det> element.
type nfeProd struct {
	Description string `xml:"http://www.portalfiscal.inf.br/nfe xProd"`
	Quantity    string `xml:"http://www.portalfiscal.inf.br/nfe qCom"`
	UnitValue   string `xml:"http://www.portalfiscal.inf.br/nfe vUnCom"`
	TotalValue  string `xml:"http://www.portalfiscal.inf.br/nfe vProd"`
}

type nfeDet struct {
	Prod *nfeProd `xml:"http://www.portalfiscal.inf.br/nfe prod"`
}

// FromXML returns one line item per det/prod group of an NF-e document,
// at any depth, labeled with the file's base name. Well-formed XML
// without such groups yields an empty slice. Unreadable files and XML
// syntax errors are returned as errors.
func FromXML(path string) ([]model.LineItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening XML: %w", err)
	}
	defer f.Close()

	items, err := decodeNFe(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parsing XML %s: %w", filepath.Base(path), err)
	}
	return items, nil
}

// decodeNFe streams tokens so det elements are found wherever the
// document nests them (nfeProc/NFe/infNFe/det or a bare NFe).
func decodeNFe(r io.Reader, label string) ([]model.LineItem, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.Reader

	items := []model.LineItem{}
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawElement = true
		if start.Name.Space != NFeNamespace || start.Name.Local != "det" {
			continue
		}

		var det nfeDet
		if err := dec.DecodeElement(&det, &start); err != nil {
			return nil, err
		}
		if det.Prod == nil {
			continue
		}
		items = append(items, model.LineItem{
			DocumentLabel: label,
			Description:   strings.TrimSpace(det.Prod.Description),
			Quantity:      ParseNumber(det.Prod.Quantity),
			UnitValue:     ParseNumber(det.Prod.UnitValue),
			TotalValue:    ParseNumber(det.Prod.TotalValue),
		})
	}

	if !sawElement {
		return nil, errors.New("no root element")
	}
	return items, nil
}
