package betting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWallet(t *testing.T) {
	w := NewWallet(dec(100))

	require.NoError(t, w.Debit(dec(40)))
	assert.True(t, dec(60).Equal(w.Balance()))

	err := w.Debit(dec(61))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, dec(60).Equal(w.Balance()))

	require.ErrorIs(t, w.Debit(dec(0)), ErrInvalidAmount)

	w.Credit(dec(15))
	w.Credit(dec(-3))
	assert.True(t, dec(75).Equal(w.Balance()))

	require.NoError(t, w.Debit(dec(75)))
	assert.True(t, w.Balance().IsZero())
}
