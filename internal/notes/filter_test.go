package notes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notafiscal/internal/model"
)

func TestFilter_Screen(t *testing.T) {
	tests := []struct {
		name      string
		include   []string
		exclude   []string
		subject   string
		files     []string
		wantFiles []string
		wantKinds []model.NoteKind
	}{
		{
			name:      "subject match accepts attachment without keyword",
			include:   []string{"nfe"},
			subject:   "Sua NFe 123",
			files:     []string{"fatura.pdf"},
			wantFiles: []string{"fatura.pdf"},
			wantKinds: []model.NoteKind{model.KindPDF},
		},
		{
			name:      "filename match when subject does not match",
			include:   []string{"nfe"},
			subject:   "Promoção do mês",
			files:     []string{"nfe_compra.xml"},
			wantFiles: []string{"nfe_compra.xml"},
			wantKinds: []model.NoteKind{model.KindXML},
		},
		{
			name:    "exclude keyword in subject skips whole message",
			include: []string{"nfe"},
			exclude: []string{"promo"},
			subject: "Promoção NFe",
			files:   []string{"nfe.xml", "nfe.pdf"},
		},
		{
			name:    "neither subject nor filename matches",
			include: []string{"nfe"},
			subject: "Relatório",
			files:   []string{"relatorio.pdf"},
		},
		{
			name:      "exclude keyword in filename skips only that attachment",
			include:   []string{"nota"},
			exclude:   []string{"boleto"},
			subject:   "Nota fiscal de março",
			files:     []string{"boleto.pdf", "danfe.pdf"},
			wantFiles: []string{"danfe.pdf"},
			wantKinds: []model.NoteKind{model.KindPDF},
		},
		{
			name:      "no include keywords accepts every matching kind",
			subject:   "anything",
			files:     []string{"a.PDF", "b.xml", "c.txt", "d.pdf.zip"},
			wantFiles: []string{"a.PDF", "b.xml"},
			wantKinds: []model.NoteKind{model.KindPDF, model.KindXML},
		},
		{
			name:    "attachment without name is skipped",
			subject: "nfe",
			files:   []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(nil, tt.include, tt.exclude)
			got := f.Screen(MessageHeader{UID: "7", Subject: tt.subject, Sender: "loja@example.com"}, tt.files)

			var files []string
			var kinds []model.NoteKind
			for _, m := range got {
				files = append(files, m.Filename)
				kinds = append(kinds, m.Kind)
				assert.Equal(t, "7", m.UID)
				assert.Equal(t, tt.subject, m.Subject)
			}
			assert.Equal(t, tt.wantFiles, files)
			assert.Equal(t, tt.wantKinds, kinds)
		})
	}
}

func TestFilter_ExcludeInSenderSkipsMessage(t *testing.T) {
	f := NewFilter(nil, nil, []string{"newsletter"})
	got := f.Screen(MessageHeader{Subject: "NFe", Sender: "Newsletter <news@shop.com>"}, []string{"nfe.xml"})
	assert.Empty(t, got)
}

func TestFilter_KindRestriction(t *testing.T) {
	f := NewFilter([]model.NoteKind{model.KindXML}, nil, nil)

	_, ok := f.Accept(true, "danfe.pdf")
	assert.False(t, ok)

	kind, ok := f.Accept(true, "NFE.XML")
	require.True(t, ok)
	assert.Equal(t, model.KindXML, kind)
}

func TestFilter_KeywordsAreCaseInsensitive(t *testing.T) {
	f := NewFilter(nil, []string{"  DANFE "}, nil)
	assert.True(t, f.MatchesMessage("Segue danfe", ""))
	_, ok := f.Accept(false, "Danfe_001.PDF")
	assert.True(t, ok)
}

func TestKindFromFilename(t *testing.T) {
	assert.Equal(t, model.KindPDF, model.KindFromFilename("x.Pdf"))
	assert.Equal(t, model.KindXML, model.KindFromFilename("x.xml"))
	assert.Equal(t, model.NoteKind(""), model.KindFromFilename("x.xml.p7s"))
	assert.Equal(t, model.NoteKind(""), model.KindFromFilename("pdf"))
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds(" pdf, XML ,pdf")
	require.NoError(t, err)
	assert.Equal(t, []model.NoteKind{model.KindPDF, model.KindXML}, kinds)

	_, err = ParseKinds("pdf,zip")
	assert.Error(t, err)
}

func TestSplitKeywords(t *testing.T) {
	assert.Equal(t, []string{"nfe", "nota fiscal"}, SplitKeywords(" nfe, ,nota fiscal,"))
	assert.Nil(t, SplitKeywords(""))
}
