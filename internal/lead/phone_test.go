package lead

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePhone_PrependsCountryCode(t *testing.T) {
	t.Parallel()

	p := NormalizePhone("11987654321", "55")
	require.Equal(t, "+5511987654321", p.E164)
	require.Equal(t, "5511987654321", p.Wire)
}

func TestNormalizePhone_KeepsExistingCountryCode(t *testing.T) {
	t.Parallel()

	p := NormalizePhone("+55 (11) 98765-4321", "55")
	require.Equal(t, "+5511987654321", p.E164)
	require.Equal(t, "5511987654321", p.Wire)
}

func TestNormalizePhone_StripsPunctuation(t *testing.T) {
	t.Parallel()

	p := NormalizePhone("(11) 98765-4321", "55")
	require.Equal(t, "+5511987654321", p.E164)
}

func TestNormalizePhone_EmptyInput(t *testing.T) {
	t.Parallel()

	p := NormalizePhone("--", "55")
	require.Empty(t, p.E164)
	require.Empty(t, p.Wire)
}

func TestDigits(t *testing.T) {
	t.Parallel()

	require.Equal(t, "5511987654321", Digits("+55 (11) 98765-4321"))
	require.Equal(t, "", Digits("abc"))
}
