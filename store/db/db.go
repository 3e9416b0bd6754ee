package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/calroute/internal/profile"
	"github.com/hrygo/calroute/store"
	"github.com/hrygo/calroute/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
// Only the embedded SQLite driver is supported.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite' is supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
