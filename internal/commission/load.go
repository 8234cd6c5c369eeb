package commission

import (
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/arbscan/arbscan/errs"
)

// LoadDir reads every <venue>.json commission file under dir. A file that
// cannot be read or decoded is logged and skipped; an unreadable directory is
// a configuration error and aborts startup.
func LoadDir(dir string, logger zerolog.Logger) (Raw, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.New("", errs.CodeInvalidConfig,
			errs.WithMessage("commissions directory unreadable"), errs.WithCause(err))
	}

	raw := make(Raw)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		venue := strings.TrimSuffix(name, ".json")
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("skipping unreadable commission file")
			continue
		}
		var fees map[string]map[string]string
		if err := json.Unmarshal(data, &fees); err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("skipping malformed commission file")
			continue
		}
		raw[venue] = fees
	}
	if len(raw) == 0 {
		logger.Warn().Str("dir", dir).Msg("no commission files found, all fees default to zero")
	}
	return raw, nil
}
