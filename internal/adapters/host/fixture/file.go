package fixture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	fixtureFileMode = 0o600
	fixtureDirMode  = 0o700
	tempFilePattern = ".fixture-*.toml.tmp"
)

func readSchema(path string) (fileSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileSchema{}, fmt.Errorf("read fixture file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode fixture file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

// ensureFile writes the default fixture when path does not exist yet.
func ensureFile(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat fixture file: %w", err)
	}
	return writeSchema(path, defaultSchema())
}

func writeSchema(path string, file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(path), fixtureDirMode); err != nil {
		return fmt.Errorf("create fixture directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode fixture file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp fixture file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp fixture file: %w", err)
	}

	if err := tempFile.Chmod(fixtureFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp fixture file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp fixture file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace fixture file: %w", err)
	}

	cleanup = false
	return nil
}
