package metadata

import (
	"log/slog"
	"os"
	"strings"

	"github.com/pingcap/errors"
)

// ReadRequirements parses lockfile content. Blank lines and "#" comments are
// ignored. Each remaining line is one pinned requirement.
func ReadRequirements(data []byte) (Set, error) {
	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return ParseRequirements(entries)
}

// LoadRequirementsFile reads a lockfile from disk. A missing file is a
// legitimate absence and returns a nil Set with no error.
func LoadRequirementsFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("no requirements file found", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read requirements file %q", path)
	}
	deps, err := ReadRequirements(data)
	if err != nil {
		return nil, err
	}
	if len(deps) == 0 {
		slog.Warn("requirements file is empty", "path", path)
		return nil, nil
	}
	return deps, nil
}

// WriteRequirementsFile writes pinned requirement lines, newline-terminated.
// An existing file is preserved unless overwrite is set; with backup the old
// file is renamed aside first.
func WriteRequirementsFile(path string, lines []string, overwrite, backup bool) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			slog.Warn("requirements file exists, not writing", "path", path)
			return false, nil
		}
		if backup {
			backupPath := path + ".last"
			if err := os.Rename(path, backupPath); err != nil {
				return false, errors.Wrapf(err, "backup requirements file %q", path)
			}
			slog.Info("backed up requirements file", "from", path, "to", backupPath)
		}
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec
		return false, errors.Wrapf(err, "write requirements file %q", path)
	}
	slog.Debug("wrote requirements file", "path", path, "entries", len(lines))
	return true, nil
}

// RequirementChange is one difference between two requirement lists. Old is
// empty for additions, New is empty for removals.
type RequirementChange struct {
	Old string
	New string
}

// CompareRequirements diffs two requirement line lists by formula key.
func CompareRequirements(current, updated []string) []RequirementChange {
	currentByKey, currentOrder := indexRequirements(current)
	updatedByKey, updatedOrder := indexRequirements(updated)

	var changes []RequirementChange
	for _, key := range currentOrder {
		old := currentByKey[key]
		if updatedLine, ok := updatedByKey[key]; !ok {
			changes = append(changes, RequirementChange{Old: old})
		} else if updatedLine != old {
			changes = append(changes, RequirementChange{Old: old, New: updatedLine})
		}
	}
	for _, key := range updatedOrder {
		if _, ok := currentByKey[key]; !ok {
			changes = append(changes, RequirementChange{New: updatedByKey[key]})
		}
	}
	return changes
}

func indexRequirements(lines []string) (map[PackageKey]string, []PackageKey) {
	byKey := make(map[PackageKey]string, len(lines))
	var order []PackageKey
	for _, line := range lines {
		dep, err := ParseRequirementEntry(line)
		if err != nil {
			continue
		}
		if _, ok := byKey[dep.Key]; !ok {
			order = append(order, dep.Key)
		}
		byKey[dep.Key] = line
	}
	return byKey, order
}
