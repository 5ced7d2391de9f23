//go:build !gcp

package artifact

import (
	"context"
	"fmt"
)

func newGCSStore(_ context.Context, _ GCSConfig) (Store, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
