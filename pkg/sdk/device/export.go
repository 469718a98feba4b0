package device

import (
	"encoding/base64"

	"github.com/kashguard/go-waas-device/internal/mpc/coordinator"
	"github.com/pkg/errors"
)

// MarshalExportMetadata renders prepared export metadata as a base64 string
// that can be stored between PrepareDeviceArchive and ExportPrivateKeys.
func MarshalExportMetadata(md *coordinator.ExportMetadata) (string, error) {
	b, err := coordinator.EncodeExportMetadata(md)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func UnmarshalExportMetadata(s string) (*coordinator.ExportMetadata, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "export metadata is not valid base64")
	}
	return coordinator.DecodeExportMetadata(b)
}
