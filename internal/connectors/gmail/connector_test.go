package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawMail = "Message-ID: <volante-45@hipodromo.cl>\r\n" +
	"From: Programas <programas@hipodromo.cl>\r\n" +
	"Subject: =?UTF-8?Q?Volante_Reuni=C3=B3n_45?=\r\n" +
	"Date: Fri, 21 Nov 2025 08:30:00 -0300\r\n" +
	"\r\n" +
	"body\r\n"

func TestToFetchedReadsHeaders(t *testing.T) {
	m := toFetched("18c0a", 0, []byte(rawMail))
	assert.Equal(t, "gmail", m.Provider)
	assert.Equal(t, "<volante-45@hipodromo.cl>", m.MessageID)
	assert.Equal(t, "Volante Reunión 45", m.Subject)
	assert.Equal(t, "programas@hipodromo.cl", m.From)
	assert.Equal(t, "2025-11-21T11:30:00Z", m.ReceivedAt)

	m = toFetched("18c0a", 1763724600000, []byte("not a mail"))
	assert.Equal(t, "18c0a", m.MessageID)
	assert.Equal(t, "2025-11-21T11:30:00Z", m.ReceivedAt)
}

func TestDecodeRaw(t *testing.T) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
		got, err := decodeRaw(enc.EncodeToString([]byte(rawMail)))
		require.NoError(t, err)
		assert.Equal(t, rawMail, string(got))
	}

	_, err := decodeRaw("***")
	assert.Error(t, err)
}
