package notify

import (
	"os"
	"path/filepath"

	"notibot/internal/transport"
)

// prepareMedia resolves a media argument: an existing local file is
// read fully into memory; anything else is passed through to the
// transport as a URL string.
func prepareMedia(fileOrURL string) (transport.Media, error) {
	info, err := os.Stat(fileOrURL)
	if err != nil || info.IsDir() {
		return transport.Media{URL: fileOrURL}, nil
	}

	b, err := os.ReadFile(fileOrURL)
	if err != nil {
		return transport.Media{}, err
	}
	return transport.Media{Blob: &transport.Blob{Name: filepath.Base(fileOrURL), Data: b}}, nil
}
