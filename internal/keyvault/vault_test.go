package keyvault

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVaultRoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	v := New()
	v.Add(KeyGaen, priv)

	pair, err := v.Get(KeyGaen)
	require.NoError(t, err)
	require.Equal(t, priv, pair.Private)
	require.True(t, priv.PublicKey.Equal(pair.Public))

	_, err = v.Get(KeyNextDayJWT)
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestAddFromPEM_PKCS8(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pemBytes, err := EncodePKCS8PEM(priv)
	require.NoError(t, err)

	v := New()
	require.NoError(t, v.AddFromPEM(KeyNextDayJWT, pemBytes))
	pair, err := v.Get(KeyNextDayJWT)
	require.NoError(t, err)
	require.True(t, priv.Equal(pair.Private))
}

func TestAddFromPEM_SEC1(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	v := New()
	require.NoError(t, v.AddFromPEM(KeyHashFilter, pemBytes))
	pair, err := v.Get(KeyHashFilter)
	require.NoError(t, err)
	require.True(t, priv.Equal(pair.Private))
}

func TestAddFromPEM_Garbage(t *testing.T) {
	v := New()
	require.Error(t, v.AddFromPEM(KeyGaen, []byte("not a key")))
}
