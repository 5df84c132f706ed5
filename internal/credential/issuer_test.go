package credential

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/ticketing/internal/model"
)

func sampleTicket() *model.Ticket {
	return &model.Ticket{
		ID:      "tkt-1",
		Number:  "TKT-20260901-0001",
		EventID: "evt-1",
	}
}

func TestIssueAndDecodeRoundTrip(t *testing.T) {
	tk := sampleTicket()
	secret, encoded, err := Issue(tk)
	require.NoError(t, err)
	assert.Len(t, secret, 64)
	assert.Equal(t, strings.ToLower(secret), secret)

	p, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, p.TicketID)
	assert.Equal(t, tk.Number, p.TicketNumber)
	assert.Equal(t, tk.EventID, p.EventID)
	assert.Equal(t, secret, p.Secret)
	assert.False(t, p.IsGroup)
	assert.Empty(t, p.GroupLineItems)
	require.NoError(t, Verify(secret, p.Secret))
}

func TestIssueGroupCarriesLineItems(t *testing.T) {
	tk := sampleTicket()
	tk.IsGroup = true
	tk.GroupLineItems = []model.GroupLineItem{
		{Name: "General", Quantity: 2, UnitPrice: decimal.RequireFromString("45.00")},
		{Name: "VIP", Quantity: 1, UnitPrice: decimal.RequireFromString("120.00")},
	}

	_, encoded, err := Issue(tk)
	require.NoError(t, err)

	p, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, p.IsGroup)
	require.Len(t, p.GroupLineItems, 2)
	assert.Equal(t, "VIP", p.GroupLineItems[1].Name)
	assert.Equal(t, 1, p.GroupLineItems[1].Quantity)
}

func TestDecodeToleratesPadding(t *testing.T) {
	_, encoded, err := Issue(sampleTicket())
	require.NoError(t, err)

	p, err := Decode(encoded + "==")
	require.NoError(t, err)
	assert.Equal(t, "tkt-1", p.TicketID)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, enc := range []string{"", "!!!", "bm90LWpzb24", "e30"} {
		_, err := Decode(enc)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", enc)
	}
}

func TestDecodeRequiresIdentifyingFields(t *testing.T) {
	tk := sampleTicket()
	secret, _, err := Issue(tk)
	require.NoError(t, err)

	stripped := *tk
	stripped.Number = ""
	encoded, err := Encode(&stripped, secret)
	require.NoError(t, err)

	_, err = Decode(encoded)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyRejectsRotatedSecret(t *testing.T) {
	tk := sampleTicket()
	oldSecret, oldEncoded, err := Issue(tk)
	require.NoError(t, err)

	newSecret, err := NewSecret()
	require.NoError(t, err)
	require.NotEqual(t, oldSecret, newSecret)

	p, err := Decode(oldEncoded)
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(newSecret, p.Secret), ErrMismatch)
}

func TestShortCode(t *testing.T) {
	secret := "a1b2c3deadbeef"
	code := ShortCode(secret)
	assert.Equal(t, "A1B2C3", code)
	assert.True(t, MatchesShortCode(secret, "a1b2c3"))
	assert.True(t, MatchesShortCode(secret, "A1B2C3"))
	assert.False(t, MatchesShortCode(secret, "A1B2C4"))
	assert.False(t, MatchesShortCode(secret, "A1B2C"))
	assert.False(t, MatchesShortCode(secret, "A1B2C3D"))
}

func TestQRPNG(t *testing.T) {
	_, encoded, err := Issue(sampleTicket())
	require.NoError(t, err)

	png, err := QRPNG(encoded, 256)
	require.NoError(t, err)
	require.True(t, len(png) > 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
