package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Encode renders v the way every artifact is stored on disk: indented JSON
// with a trailing newline.
func Encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteJSONAtomic replaces path with the encoding of v via a temp file and
// rename, so readers never observe a partial file.
func WriteJSONAtomic(path string, v any) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	data, err := Encode(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// createExclusive writes data to <dir>/<prefix><token>.json without ever
// replacing an existing file. On collision a -2, -3, ... suffix is added to
// the token. It returns the file name actually written.
func createExclusive(dir, prefix, token string, data []byte) (string, error) {
	for n := 1; n < 1000; n++ {
		t := token
		if n > 1 {
			t = token + "-" + strconv.Itoa(n)
		}
		name := prefix + t + ".json"
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", name, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("no free file name for %s%s", prefix, token)
}

// parseAgentFile splits "<kind>_<agent>_<token>.json" into agent and token.
func parseAgentFile(name, kind string) (agent, token string, ok bool) {
	rest, found := strings.CutPrefix(name, kind+"_")
	if !found {
		return "", "", false
	}
	rest, found = strings.CutSuffix(rest, ".json")
	if !found {
		return "", "", false
	}
	agent, token, found = strings.Cut(rest, "_")
	if !found || agent == "" || token == "" {
		return "", "", false
	}
	return agent, token, true
}

// parseConvergenceFile extracts the token from "convergence_<token>.json".
func parseConvergenceFile(name string) (string, bool) {
	rest, found := strings.CutPrefix(name, "convergence_")
	if !found {
		return "", false
	}
	token, found := strings.CutSuffix(rest, ".json")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
