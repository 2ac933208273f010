package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/omnichat/internal/profile"
	"github.com/hrygo/omnichat/store"
	"github.com/hrygo/omnichat/store/db/bolt"
	"github.com/hrygo/omnichat/store/db/mysql"
	"github.com/hrygo/omnichat/store/db/postgres"
	"github.com/hrygo/omnichat/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	case "mysql":
		driver, err = mysql.NewDB(profile)
	case "bolt":
		driver, err = bolt.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
