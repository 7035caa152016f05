package gaenpb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportRoundTrip(t *testing.T) {
	in := TemporaryExposureKeyExport{
		StartTimestamp: 1593043200,
		EndTimestamp:   1593129600,
		Region:         "es",
		BatchNum:       1,
		BatchSize:      1,
		SignatureInfos: []SignatureInfo{{
			AppBundleID:            "org.dpppt.ios.demo",
			AndroidPackage:         "org.dpppt.android.demo",
			VerificationKeyVersion: "v1",
			VerificationKeyID:      "214",
			SignatureAlgorithm:     "1.2.840.10045.4.3.2",
		}},
		Keys: []TemporaryExposureKey{
			{
				KeyData:                    bytes.Repeat([]byte{0x42}, 16),
				RollingStartIntervalNumber: 2655360,
				RollingPeriod:              144,
				ReportType:                 1,
			},
			{
				KeyData:                    bytes.Repeat([]byte{0x17}, 16),
				TransmissionRiskLevel:      3,
				RollingStartIntervalNumber: 2655504,
				RollingPeriod:              144,
				DaysSinceOnsetOfSymptoms:   -2,
			},
		},
	}

	raw := in.Marshal()
	var out TemporaryExposureKeyExport
	require.NoError(t, out.Unmarshal(raw))
	require.Equal(t, in, out)
}

func TestMarshalIsDeterministic(t *testing.T) {
	k := TemporaryExposureKey{
		KeyData:                    bytes.Repeat([]byte{0x01}, 16),
		RollingStartIntervalNumber: 2655360,
		RollingPeriod:              144,
	}
	require.Equal(t, k.Marshal(), k.Marshal())

	e := TemporaryExposureKeyExport{Region: "es", Keys: []TemporaryExposureKey{k}}
	require.Equal(t, e.Marshal(), e.Marshal())
}

func TestFilterItemLayout(t *testing.T) {
	k := TemporaryExposureKey{
		KeyData:                    bytes.Repeat([]byte{0x42}, 16),
		TransmissionRiskLevel:      3, // must not leak into the filter item
		RollingStartIntervalNumber: 2655360,
		RollingPeriod:              144,
		ReportType:                 1, // must not leak either
	}

	item := k.MarshalFilterItem()

	var out TemporaryExposureKey
	require.NoError(t, out.Unmarshal(item))
	require.Equal(t, k.KeyData, out.KeyData)
	require.Equal(t, k.RollingStartIntervalNumber, out.RollingStartIntervalNumber)
	require.Equal(t, k.RollingPeriod, out.RollingPeriod)
	require.Zero(t, out.TransmissionRiskLevel)
	require.Zero(t, out.ReportType)
	require.Zero(t, out.DaysSinceOnsetOfSymptoms)

	// explicit zero onset is present on the wire: tag 6 varint, zigzag(0)
	require.Equal(t, []byte{0x30, 0x00}, item[len(item)-2:])
}

func TestSignatureListRoundTrip(t *testing.T) {
	in := TEKSignatureList{Signatures: []TEKSignature{{
		SignatureInfo: SignatureInfo{
			VerificationKeyVersion: "v1",
			VerificationKeyID:      "214",
			SignatureAlgorithm:     "1.2.840.10045.4.3.2",
		},
		BatchNum:  1,
		BatchSize: 1,
		Signature: []byte{0x30, 0x45, 0x02, 0x21},
	}}}

	raw := in.Marshal()
	var out TEKSignatureList
	require.NoError(t, out.Unmarshal(raw))
	require.Equal(t, in, out)
}
