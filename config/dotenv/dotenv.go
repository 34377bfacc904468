// Package dotenv loads a .env file into the process environment. Import it
// for side effects before anything reads configuration.
package dotenv

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

func init() {
	file := os.Getenv("CRONTUB_ENV_FILE")
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}
}
