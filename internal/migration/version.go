package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// SchemaInfo identifies the embedded schema revision.
type SchemaInfo struct {
	Version  uint
	Checksum string
}

func (s SchemaInfo) VersionString() string {
	return strconv.FormatUint(uint64(s.Version), 10)
}

// Schema reads the highest migration version and the checksum of every up
// migration in one pass over the embedded files.
func Schema() (SchemaInfo, error) {
	names, err := upMigrations()
	if err != nil {
		return SchemaInfo{}, err
	}

	var info SchemaInfo
	hasher := sha256.New()
	for _, name := range names {
		version, ok := parseMigrationVersion(name)
		if !ok {
			return SchemaInfo{}, fmt.Errorf("invalid migration filename: %s", name)
		}
		info.Version = max(info.Version, version)

		content, err := embeddedMigrations.ReadFile(migrationsDir + "/" + name)
		if err != nil {
			return SchemaInfo{}, fmt.Errorf("read migration %s: %w", name, err)
		}
		_, _ = hasher.Write([]byte(name))
		_, _ = hasher.Write([]byte{0})
		_, _ = hasher.Write(content)
		_, _ = hasher.Write([]byte{0})
	}
	if info.Version == 0 {
		return SchemaInfo{}, errors.New("no embedded migrations found")
	}
	info.Checksum = hex.EncodeToString(hasher.Sum(nil))
	return info, nil
}

func LatestMigrationVersion() (uint, error) {
	info, err := Schema()
	return info.Version, err
}

func MigrationsChecksum() (string, error) {
	info, err := Schema()
	return info.Checksum, err
}

func upMigrations() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func parseMigrationVersion(name string) (uint, bool) {
	prefix, _, found := strings.Cut(name, "_")
	if !found || prefix == "" {
		return 0, false
	}
	parsed, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(parsed), true
}
