// Package version gates strategies on the engine API version they were
// written against.
package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// Engine is the API version exposed to strategies. The default "main"
// indicates a development build; releases override it at build time via
// -ldflags "-X github.com/rxtech-lab/tradeloop/internal/version.Engine=1.2.3".
var Engine = "main"

// CheckCompatibility reports whether a strategy written against
// strategyVersion can run on the given engine version.
//
// Rules:
//   - "main" on either side is a development build and skips the check
//   - major and minor versions must match exactly
//   - patch versions may differ
func CheckCompatibility(engineVersion, strategyVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	strategyVersion = strings.TrimPrefix(strategyVersion, "v")

	if engineVersion == "main" || strategyVersion == "main" {
		return nil
	}

	ev, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid engine version %q", engineVersion)
	}

	sv, err := semver.NewVersion(strategyVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid strategy version %q", strategyVersion)
	}

	if ev.Major() != sv.Major() {
		return errors.Newf(errors.ErrCodeInvalidVersion,
			"major version mismatch: engine is %d.x.x but strategy requires %d.x.x",
			ev.Major(), sv.Major())
	}

	if ev.Minor() != sv.Minor() {
		return errors.Newf(errors.ErrCodeInvalidVersion,
			"minor version mismatch: engine is %d.%d.x but strategy requires %d.%d.x",
			ev.Major(), ev.Minor(), sv.Major(), sv.Minor())
	}

	return nil
}
