package conf

import (
	"github.com/oceanlabs/hydrolabel-go/internal/errors"
)

// ValidateSettings checks the loaded settings for values that would break
// the server or the stores at runtime.
func ValidateSettings(s *Settings) error {
	var errs []error

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		errs = append(errs, errors.Newf("server port %d out of range 1-65535", s.Server.Port).
			Category(errors.CategoryConfiguration).
			Context("port", s.Server.Port).
			Build())
	}

	if s.Discovery.MaxEntries < 0 {
		errs = append(errs, errors.Newf("discovery.maxentries must be >= 0, got %d", s.Discovery.MaxEntries).
			Category(errors.CategoryConfiguration).
			Build())
	}

	if s.Discovery.CacheTTLSec < 0 {
		errs = append(errs, errors.Newf("discovery.cachettlsec must be >= 0, got %d", s.Discovery.CacheTTLSec).
			Category(errors.CategoryConfiguration).
			Build())
	}

	if s.Main.Log.Enabled && s.Main.Log.Path == "" {
		errs = append(errs, errors.Newf("main.log.path required when file logging is enabled").
			Category(errors.CategoryConfiguration).
			Build())
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
