package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notafiscal/internal/model"
)

func headerBlock(subject, from string) []byte {
	return []byte("From: " + from + "\r\nSubject: " + subject +
		"\r\nDate: Tue, 07 Oct 2025 08:30:00 -0300\r\n\r\n")
}

func TestListRecent_HeaderFallback(t *testing.T) {
	srv := newFakeServer()
	srv.add(1, buildMessage("Primeira", sender))
	srv.add(2, buildMessage("ignored", sender))
	srv.add(3, buildMessage("ignored", sender))
	srv.headers[2] = headerBlock("Segunda", sender)
	srv.headers[3] = headerBlock("Terceira", sender)

	s := srv.session()
	defer s.Close()

	var streamed []string
	got, err := s.ListRecent(context.Background(), 10, func(m model.MessageSummary) {
		streamed = append(streamed, m.UID)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "3", got[0].UID)
	assert.Equal(t, "Terceira", got[0].Subject)
	assert.Equal(t, "Tue, 07 Oct 2025 08:30:00 -0300", got[0].Date)
	assert.Equal(t, "Segunda", got[1].Subject)
	assert.Equal(t, "Primeira", got[2].Subject)
	assert.Equal(t, sender, got[2].Sender)
	assert.Equal(t, []string{"3", "2", "1"}, streamed)
}

func TestListRecent_LimitAndSkips(t *testing.T) {
	srv := newFakeServer()
	srv.add(1, buildMessage("Um", sender))
	srv.add(2, buildMessage("Dois", sender))
	srv.uids = append(srv.uids, 3) // listed by SEARCH, gone on FETCH

	s := srv.session()
	defer s.Close()

	got, err := s.ListRecent(context.Background(), 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dois", got[0].Subject)

	dials := srv.dials
	got, err = s.ListRecent(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, dials, srv.dials)
}

func TestNonPositiveLimitSkipsServer(t *testing.T) {
	srv := invoiceServer()
	s := srv.session()
	defer s.Close()

	got, err := s.ListRecent(context.Background(), -1, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	opts := invoiceOptions()
	opts.Limit = 0
	matches, err := s.SearchNotes(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, matches)

	assert.Zero(t, srv.dials)
	assert.Zero(t, srv.fullFetchs)
}

func TestListRecent_DecodesEncodedWords(t *testing.T) {
	srv := newFakeServer()
	srv.add(1, buildMessage("ignored", sender))
	srv.headers[1] = headerBlock("=?utf-8?q?Nota_Fiscal_Eletr=C3=B4nica?=", sender)

	s := srv.session()
	defer s.Close()

	got, err := s.ListRecent(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Nota Fiscal Eletrônica", got[0].Subject)
}

func TestCountInbox(t *testing.T) {
	srv := invoiceServer()
	s := srv.session()
	defer s.Close()

	assert.Equal(t, 3, s.CountInbox(context.Background()))

	srv.searchErr = &imap.Error{Type: imap.StatusResponseTypeBad, Text: "nope"}
	assert.Equal(t, 0, s.CountInbox(context.Background()))
}

const relatedMessage = "From: " + sender + "\r\n" +
	"Subject: NF-e 123\r\n" +
	"Date: Mon, 06 Oct 2025 10:00:00 -0300\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"OUTER\"\r\n" +
	"\r\n" +
	"--OUTER\r\n" +
	"Content-Type: multipart/related; boundary=\"REL\"\r\n" +
	"\r\n" +
	"--REL\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Ola <img src=\"cid:logo@loja\"></p>\r\n" +
	"--REL\r\n" +
	"Content-Type: image/png\r\n" +
	"Content-Id: <logo@loja>\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"iVBORw0KGgo=\r\n" +
	"--REL--\r\n" +
	"--OUTER\r\n" +
	"Content-Type: text/xml; name=\"nota.xml\"\r\n" +
	"Content-Disposition: attachment; filename=\"nota.xml\"\r\n" +
	"\r\n" +
	"<nfeProc/>\r\n" +
	"--OUTER--\r\n"

func TestFetchFullEmail(t *testing.T) {
	srv := newFakeServer()
	srv.add(7, []byte(relatedMessage))
	s := srv.session()
	defer s.Close()

	email, err := s.FetchFullEmail(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, "7", email.UID)
	assert.Equal(t, "NF-e 123", email.Subject)
	assert.Empty(t, email.TextBody)
	assert.Contains(t, email.HTMLBody, "cid:logo@loja")

	require.Len(t, email.Attachments, 1)
	assert.Equal(t, model.AttachmentInfo{
		Filename:    "nota.xml",
		ContentType: "text/xml",
		Size:        int64(len("<nfeProc/>")),
	}, email.Attachments[0])

	require.Contains(t, email.InlineImages, "logo@loja")
	require.Contains(t, email.InlineImages, "cid:logo@loja")
	assert.True(t, strings.HasPrefix(email.InlineImages["logo@loja"], "data:image/png;base64,"))
	assert.Equal(t, email.InlineImages["logo@loja"], email.InlineImages["cid:logo@loja"])
}

func TestFetchFullEmail_Errors(t *testing.T) {
	srv := newFakeServer()
	s := srv.session()
	defer s.Close()

	_, err := s.FetchFullEmail(context.Background(), "abc")
	assert.Error(t, err)

	_, err = s.FetchFullEmail(context.Background(), "99")
	assert.ErrorIs(t, err, errMessageNotFound)
}

func TestParseMessage_SinglePartAttachment(t *testing.T) {
	raw := "From: " + sender + "\r\n" +
		"Subject: DANFE\r\n" +
		"Content-Type: application/pdf; name=\"danfe.pdf\"\r\n" +
		"Content-Disposition: attachment; filename=\"danfe.pdf\"\r\n" +
		"\r\n" +
		"%PDF-1.4\r\n"

	msg, err := parseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"danfe.pdf"}, msg.filenames())
	assert.Equal(t, "application/pdf", msg.attachments[0].contentType)
	assert.Empty(t, msg.textBody)
}

func TestParseMessage_MalformedDisposition(t *testing.T) {
	part := func(disposition, contentType string) string {
		return "--b\r\n" +
			"Content-Type: " + contentType + "\r\n" +
			"Content-Disposition: " + disposition + "\r\n" +
			"\r\n" +
			"%PDF-1.4\r\n"
	}
	tests := []struct {
		name        string
		disposition string
		contentType string
		want        string
	}{
		{"unquoted filename with space", "attachment; filename=nota fiscal.pdf", "application/pdf", "nota fiscal.pdf"},
		{"name from content type", "attachment; filename=nota fiscal.pdf", `application/pdf; name="nota.pdf"`, "nota.pdf"},
		{"trailing semicolon", `attachment; filename="danfe.pdf";`, "application/pdf", "danfe.pdf"},
		{"quoted", `attachment; filename="danfe.pdf"`, "application/pdf", "danfe.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "From: " + sender + "\r\n" +
				"Subject: NF-e\r\n" +
				"Content-Type: multipart/mixed; boundary=b\r\n" +
				"\r\n" +
				part(tt.disposition, tt.contentType) +
				"--b--\r\n"

			msg, err := parseMessage([]byte(raw))
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, msg.filenames())
		})
	}
}

func TestDownloadAttachments(t *testing.T) {
	srv := invoiceServer()
	s := srv.session()
	defer s.Close()

	dir := filepath.Join(t.TempDir(), "staging")
	selections := []model.Selection{
		{UID: "3", Filename: "nota.xml", Kind: model.KindXML},
		{UID: "1", Filename: "danfe_123.pdf", Kind: model.KindPDF},
		{UID: "3", Filename: "nota.pdf", Kind: model.KindPDF},
		{UID: "3", Filename: "missing.pdf", Kind: model.KindPDF},
	}

	type call struct{ done, total int }
	var calls []call
	got, err := s.DownloadAttachments(context.Background(), selections, dir,
		func(done, total int) { calls = append(calls, call{done, total}) })
	require.NoError(t, err)

	assert.Equal(t, []call{{1, 2}, {2, 2}}, calls)
	require.Len(t, got, 3)
	assert.Equal(t, "nota.xml", got[0].Filename)
	assert.Equal(t, model.KindXML, got[0].Kind)
	assert.Equal(t, "nota.pdf", got[1].Filename)
	assert.Equal(t, "danfe_123.pdf", got[2].Filename)
	assert.Equal(t, "1", got[2].UID)

	for _, d := range got {
		data, err := os.ReadFile(d.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, "content of "+d.Filename, string(data))
		assert.Equal(t, filepath.Join(dir, d.UID), filepath.Dir(d.LocalPath))
	}
	assert.Equal(t, 2, srv.fullFetchs)
}

func TestDownloadAttachments_SameNameInTwoMessages(t *testing.T) {
	srv := newFakeServer()
	srv.add(1, buildMessage("Pedido 1", sender, "DANFE.pdf"))
	srv.add(2, buildMessage("Pedido 2", sender, "DANFE.pdf"))
	srv.messages[2] = bytes.Replace(srv.messages[2],
		[]byte(base64.StdEncoding.EncodeToString([]byte("content of DANFE.pdf"))),
		[]byte(base64.StdEncoding.EncodeToString([]byte("second invoice"))), 1)
	s := srv.session()
	defer s.Close()

	got, err := s.DownloadAttachments(context.Background(), []model.Selection{
		{UID: "1", Filename: "DANFE.pdf"},
		{UID: "2", Filename: "DANFE.pdf"},
	}, t.TempDir(), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].LocalPath, got[1].LocalPath)
	assert.Equal(t, "DANFE.pdf", got[1].Filename)

	first, err := os.ReadFile(got[0].LocalPath)
	require.NoError(t, err)
	second, err := os.ReadFile(got[1].LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "content of DANFE.pdf", string(first))
	assert.Equal(t, "second invoice", string(second))
}

func TestDownloadAttachments_SkipsUnknownMessages(t *testing.T) {
	srv := invoiceServer()
	s := srv.session()
	defer s.Close()

	got, err := s.DownloadAttachments(context.Background(),
		[]model.Selection{{UID: "42", Filename: "nota.xml"}, {UID: "x", Filename: "a.pdf"}},
		t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
