// Package export assembles the downloadable bundle: the protobuf export (V1
// and V2) or the membership-filter payload (V2-UMA), its detached ECDSA
// signature, and the zip wrapping both.
package export

import (
	"archive/zip"
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sort"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/openexposure/gaen-server/internal/config"
	"github.com/openexposure/gaen-server/internal/gaenpb"
	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/utc"
)

// Zip entry names; clients unpack by name.
const (
	entryBin = "export.bin"
	entrySig = "export.sig"
)

// binHeader prefixes every protobuf export, padded to 16 bytes. Fixed by the
// platform key-import API.
const binHeader = "EK Export v1    "

// minFilterCapacity keeps tiny exports from degenerating into filters whose
// observed false-positive rate exceeds the declared bound.
const minFilterCapacity = 1024

// Assembler builds signed bundles from a key snapshot.
type Assembler struct {
	cfg  *config.Config
	priv *ecdsa.PrivateKey
}

// New constructs an assembler signing with the gaen vault key.
func New(cfg *config.Config, signingKey *ecdsa.PrivateKey) *Assembler {
	return &Assembler{cfg: cfg, priv: signingKey}
}

// BuildProtoZip assembles the V1/V2 artifact: header-prefixed protobuf export
// plus its signature, zipped. since and keyBundleTag bound the window the
// keys were fetched from.
func (a *Assembler) BuildProtoZip(keys []model.GaenKey, since, keyBundleTag utc.UTCInstant) ([]byte, error) {
	teks, err := toWireKeys(keys)
	if err != nil {
		return nil, err
	}

	export := gaenpb.TemporaryExposureKeyExport{
		StartTimestamp: uint64(since.Timestamp() / 1000),
		EndTimestamp:   uint64(keyBundleTag.Timestamp() / 1000),
		Region:         a.cfg.GaenRegion,
		BatchNum:       1,
		BatchSize:      1,
		SignatureInfos: []gaenpb.SignatureInfo{a.signatureInfo()},
		Keys:           teks,
	}

	bin := append([]byte(binHeader), export.Marshal()...)
	return a.zipWithSignature(bin)
}

// BuildUMAZip assembles the V2-UMA artifact: a Cuckoo filter over the
// serialized keys plus its signature, zipped. The filter bytes are
// self-describing (capacity and fingerprint parameters ride along in the
// encoding), so no separate parameter block is needed.
func (a *Assembler) BuildUMAZip(keys []model.GaenKey) ([]byte, error) {
	teks, err := toWireKeys(keys)
	if err != nil {
		return nil, err
	}

	capacity := uint(len(teks))
	if capacity < minFilterCapacity {
		capacity = minFilterCapacity
	}
	filter := cuckoo.NewFilter(capacity)
	for i := range teks {
		filter.Insert(teks[i].MarshalFilterItem())
	}

	return a.zipWithSignature(filter.Encode())
}

func (a *Assembler) zipWithSignature(bin []byte) ([]byte, error) {
	sig, err := a.sign(bin)
	if err != nil {
		return nil, err
	}

	list := gaenpb.TEKSignatureList{Signatures: []gaenpb.TEKSignature{{
		SignatureInfo: a.signatureInfo(),
		BatchNum:      1,
		BatchSize:     1,
		Signature:     sig,
	}}}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range []struct {
		name string
		data []byte
	}{
		{entryBin, bin},
		{entrySig, list.Marshal()},
	} {
		w, err := zw.Create(entry.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(entry.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *Assembler) sign(bin []byte) ([]byte, error) {
	digest := sha256.Sum256(bin)
	sig, err := ecdsa.SignASN1(rand.Reader, a.priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing export: %w", err)
	}
	return sig, nil
}

func (a *Assembler) signatureInfo() gaenpb.SignatureInfo {
	return gaenpb.SignatureInfo{
		AppBundleID:            a.cfg.BundleID,
		AndroidPackage:         a.cfg.PackageName,
		VerificationKeyVersion: a.cfg.KeyVersion,
		VerificationKeyID:      a.cfg.KeyIdentifier,
		SignatureAlgorithm:     a.cfg.GaenAlgorithm,
	}
}

// toWireKeys decodes and sorts the keys. Lexicographic keyData order is an
// external contract: clients verify signatures over exactly these bytes.
func toWireKeys(keys []model.GaenKey) ([]gaenpb.TemporaryExposureKey, error) {
	sorted := make([]model.GaenKey, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].KeyData < sorted[j].KeyData })

	teks := make([]gaenpb.TemporaryExposureKey, 0, len(sorted))
	for _, k := range sorted {
		data, err := k.DecodedKeyData()
		if err != nil {
			return nil, fmt.Errorf("stored key is not base64: %w", err)
		}
		teks = append(teks, gaenpb.TemporaryExposureKey{
			KeyData:                    data,
			TransmissionRiskLevel:      k.TransmissionRiskLevel,
			RollingStartIntervalNumber: int32(k.RollingStartNumber),
			RollingPeriod:              int32(k.RollingPeriod),
			ReportType:                 k.ReportType,
			DaysSinceOnsetOfSymptoms:   k.DaysSinceOnsetOfSymptoms,
		})
	}
	return teks, nil
}
