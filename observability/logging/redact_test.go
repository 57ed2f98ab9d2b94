package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskFieldMasksSensitiveKeys(t *testing.T) {
	attr := MaskField("dsn", "postgres://user:pw@host/db")
	require.Equal(t, RedactedValue, attr.Value.String())

	attr = MaskField("db_dsn", "postgres://user:pw@host/db")
	require.Equal(t, RedactedValue, attr.Value.String())

	attr = MaskField("provider", "prov-0001")
	require.Equal(t, "prov-0001", attr.Value.String())
}

func TestMaskFieldLeavesEmptyValues(t *testing.T) {
	attr := MaskField("token", "")
	require.Equal(t, "", attr.Value.String())
}

func TestSensitiveKeysCoverCredentialMaterial(t *testing.T) {
	keys := SensitiveKeys()
	require.Contains(t, keys, "secret")
	require.Contains(t, keys, "token")
	require.Contains(t, keys, "dsn")
	for _, k := range keys {
		require.True(t, IsSensitive(k))
	}
}
