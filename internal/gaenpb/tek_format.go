// Package gaenpb encodes and decodes the TemporaryExposureKey export format
// (see tek_format.proto). Encoding is deterministic: fields are written in
// ascending field-number order, so the same input always yields the same
// bytes. That determinism is an external contract — signatures and the
// membership filter both cover raw message bytes.
package gaenpb

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// TemporaryExposureKeyExport is the V1/V2 export payload.
type TemporaryExposureKeyExport struct {
	StartTimestamp uint64
	EndTimestamp   uint64
	Region         string
	BatchNum       int32
	BatchSize      int32
	SignatureInfos []SignatureInfo
	Keys           []TemporaryExposureKey
}

// SignatureInfo names the verification key clients should check against.
type SignatureInfo struct {
	AppBundleID            string
	AndroidPackage         string
	VerificationKeyVersion string
	VerificationKeyID      string
	SignatureAlgorithm     string
}

// TemporaryExposureKey is a single TEK on the wire.
type TemporaryExposureKey struct {
	KeyData                    []byte
	TransmissionRiskLevel      int32
	RollingStartIntervalNumber int32
	RollingPeriod              int32
	ReportType                 int32
	DaysSinceOnsetOfSymptoms   int32
}

// TEKSignatureList is the content of export.sig.
type TEKSignatureList struct {
	Signatures []TEKSignature
}

// TEKSignature is one detached signature over export.bin.
type TEKSignature struct {
	SignatureInfo SignatureInfo
	BatchNum      int32
	BatchSize     int32
	Signature     []byte
}

// Marshal serializes the export. Zero-valued scalar fields are skipped.
func (e *TemporaryExposureKeyExport) Marshal() []byte {
	var b []byte
	if e.StartTimestamp != 0 {
		b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, e.StartTimestamp)
	}
	if e.EndTimestamp != 0 {
		b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, e.EndTimestamp)
	}
	if e.Region != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, e.Region)
	}
	if e.BatchNum != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.BatchNum))
	}
	if e.BatchSize != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.BatchSize))
	}
	for i := range e.SignatureInfos {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, e.SignatureInfos[i].Marshal())
	}
	for i := range e.Keys {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Keys[i].Marshal())
	}
	return b
}

// Unmarshal parses an export payload.
func (e *TemporaryExposureKeyExport) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.StartTimestamp = v
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.EndTimestamp = v
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.Region = v
			b = b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.BatchNum = int32(v)
			b = b[n:]
		case 5:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.BatchSize = int32(v)
			b = b[n:]
		case 6:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			var si SignatureInfo
			if err := si.Unmarshal(v); err != nil {
				return err
			}
			e.SignatureInfos = append(e.SignatureInfos, si)
			b = b[n:]
		case 7:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			var k TemporaryExposureKey
			if err := k.Unmarshal(v); err != nil {
				return err
			}
			e.Keys = append(e.Keys, k)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// Marshal serializes the signature info.
func (s *SignatureInfo) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, s.AppBundleID)
	b = appendStringField(b, 2, s.AndroidPackage)
	b = appendStringField(b, 3, s.VerificationKeyVersion)
	b = appendStringField(b, 4, s.VerificationKeyID)
	b = appendStringField(b, 5, s.SignatureAlgorithm)
	return b
}

// Unmarshal parses a signature info.
func (s *SignatureInfo) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType || num < 1 || num > 5 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		switch num {
		case 1:
			s.AppBundleID = v
		case 2:
			s.AndroidPackage = v
		case 3:
			s.VerificationKeyVersion = v
		case 4:
			s.VerificationKeyID = v
		case 5:
			s.SignatureAlgorithm = v
		}
		b = b[n:]
	}
	return nil
}

// Marshal serializes the key. Zero-valued scalars are skipped; the membership
// filter uses MarshalFilterItem instead, which pins the exact field set.
func (k *TemporaryExposureKey) Marshal() []byte {
	var b []byte
	if len(k.KeyData) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, k.KeyData)
	}
	if k.TransmissionRiskLevel != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(k.TransmissionRiskLevel))
	}
	if k.RollingStartIntervalNumber != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(k.RollingStartIntervalNumber))
	}
	if k.RollingPeriod != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(k.RollingPeriod))
	}
	if k.ReportType != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(k.ReportType))
	}
	if k.DaysSinceOnsetOfSymptoms != 0 {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(k.DaysSinceOnsetOfSymptoms)))
	}
	return b
}

// MarshalFilterItem serializes the key the way filter members are defined:
// key data, rolling start, rolling period, and an explicit zero
// days-since-onset. Risk level and report type never appear. Clients build
// the identical bytes locally to probe the filter, so this layout must not
// change.
func (k *TemporaryExposureKey) MarshalFilterItem() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, k.KeyData)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(k.RollingStartIntervalNumber))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(k.RollingPeriod))
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(0))
	return b
}

// Unmarshal parses a key.
func (k *TemporaryExposureKey) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			k.KeyData = append([]byte(nil), v...)
			b = b[n:]
		case 2, 3, 4, 5, 6:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			switch num {
			case 2:
				k.TransmissionRiskLevel = int32(v)
			case 3:
				k.RollingStartIntervalNumber = int32(v)
			case 4:
				k.RollingPeriod = int32(v)
			case 5:
				k.ReportType = int32(v)
			case 6:
				k.DaysSinceOnsetOfSymptoms = int32(protowire.DecodeZigZag(v))
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// Marshal serializes the signature list.
func (l *TEKSignatureList) Marshal() []byte {
	var b []byte
	for i := range l.Signatures {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, l.Signatures[i].Marshal())
	}
	return b
}

// Unmarshal parses a signature list.
func (l *TEKSignatureList) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		var sig TEKSignature
		if err := sig.Unmarshal(v); err != nil {
			return err
		}
		l.Signatures = append(l.Signatures, sig)
		b = b[n:]
	}
	return nil
}

// Marshal serializes one signature entry.
func (s *TEKSignature) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, s.SignatureInfo.Marshal())
	if s.BatchNum != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.BatchNum))
	}
	if s.BatchSize != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.BatchSize))
	}
	if len(s.Signature) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Signature)
	}
	return b
}

// Unmarshal parses one signature entry.
func (s *TEKSignature) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := s.SignatureInfo.Unmarshal(v); err != nil {
				return err
			}
			b = b[n:]
		case 2, 3:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if num == 2 {
				s.BatchNum = int32(v)
			} else {
				s.BatchSize = int32(v)
			}
			b = b[n:]
		case 4:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			s.Signature = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
