package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DotEnvFile is read when the always-expected key is missing from the environment.
	DotEnvFile = ".env.local"
	// ExpectedKey is the variable every deployment sets.
	ExpectedKey = "WALDO_ROOM_API_KEY"
)

// LoadDotEnv loads path into the environment when expectedKey is unset. Variables already
// present are not overridden and a missing file is not an error. It reports whether the
// file was read.
func LoadDotEnv(path string, expectedKey string) (bool, error) {
	if os.Getenv(expectedKey) != "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat %s", path)
	}
	if err := godotenv.Load(path); err != nil {
		return false, errors.Wrapf(err, "load %s", path)
	}
	log.Debug().Str("file", path).Msg("Loaded environment file")
	return true, nil
}
