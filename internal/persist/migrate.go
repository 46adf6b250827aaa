package persist

import (
	"encoding/json"
	"fmt"
)

// blob is a loosely decoded snapshot of any historical version.
type blob map[string]json.RawMessage

// migrationStep upgrades a blob from one version to the next.
type migrationStep func(blob) blob

// steps holds one migration per transition; steps[v] upgrades v to v+1.
// Every historic step is destructive: only the session user survives,
// since amounts written by older versions are not trusted.
var steps = map[SchemaVersion]migrationStep{
	V0: keepUserOnly,
	V1: keepUserOnly,
	V2: keepUserOnly,
}

func keepUserOnly(in blob) blob {
	out := blob{}
	if uid, ok := in["userId"]; ok {
		out["userId"] = uid
	}
	return out
}

// Migrate upgrades raw from version from to CurrentVersion, one step at a time.
func Migrate(in blob, from SchemaVersion) (blob, error) {
	if from > CurrentVersion {
		return nil, fmt.Errorf("migrate: %w: %s > %s", ErrFutureVersion, from, CurrentVersion)
	}
	out := in
	for v := from; v < CurrentVersion; v++ {
		step, ok := steps[v]
		if !ok {
			return nil, fmt.Errorf("migrate: no step from %s", v)
		}
		out = step(out)
	}
	return out, nil
}

// userIDOf extracts the session user from a blob of any version.
func userIDOf(b blob) string {
	var uid string
	if raw, ok := b["userId"]; ok {
		_ = json.Unmarshal(raw, &uid)
	}
	return uid
}

func versionOf(b blob) (SchemaVersion, error) {
	raw, ok := b["version"]
	if !ok {
		return V0, nil
	}
	var v SchemaVersion
	if err := json.Unmarshal(raw, &v); err != nil {
		return V0, fmt.Errorf("decode version: %w", err)
	}
	return v, nil
}
