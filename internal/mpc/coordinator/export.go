package coordinator

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var exportEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeExportMetadata 以规范 CBOR 编码导出元数据，便于在两步之间持久化
func EncodeExportMetadata(md *ExportMetadata) ([]byte, error) {
	if md == nil || md.MPCKeyExportMetadata == "" {
		return nil, errors.New("export metadata is empty")
	}
	b, err := exportEncMode.Marshal(md)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode export metadata")
	}
	return b, nil
}

// DecodeExportMetadata 解码 EncodeExportMetadata 的输出
func DecodeExportMetadata(b []byte) (*ExportMetadata, error) {
	var md ExportMetadata
	if err := cbor.Unmarshal(b, &md); err != nil {
		return nil, errors.Wrap(err, "failed to decode export metadata")
	}
	if md.MPCKeyExportMetadata == "" {
		return nil, errors.New("decoded export metadata is empty")
	}
	return &md, nil
}
