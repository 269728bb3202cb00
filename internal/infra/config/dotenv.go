package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given dotenv files into the process
// environment. Variables already present in the environment are not
// overridden. Missing files are skipped.
func LoadDotEnv(files ...string) (loaded []string, err error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return loaded, fmt.Errorf("load %s: %w", file, err)
		}

		loaded = append(loaded, file)
	}

	return loaded, nil
}
