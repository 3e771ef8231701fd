package instance

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

const (
	// EnvClinePath overrides automatic entry-point resolution.
	EnvClinePath = "CLINE_PATH"

	coreScript = "cline-core.js"
)

// ResolveCorePath finds cline-core.js. The precedence chain is:
//
//  1. the explicit path argument (the script itself, a directory
//     containing it, or an executable whose sibling it is);
//  2. the CLINE_PATH environment variable, interpreted the same way;
//  3. a "cline" executable on PATH, taking its sibling cline-core.js;
//  4. the global npm root, at <root>/cline/cline-core.js.
//
// Each step is attempted only when the previous one yields nothing.
// Exhausting the chain is a configuration error; it is not retried.
func ResolveCorePath(explicit string) (string, error) {
	if explicit != "" {
		path, err := resolveFromPath(explicit)
		if err != nil {
			return "", err
		}
		return path, nil
	}

	if envPath := os.Getenv(EnvClinePath); envPath != "" {
		path, err := resolveFromPath(envPath)
		if err == nil {
			return path, nil
		}
		clinekitlog.Warn("CLINE_PATH points at an invalid location, falling through", "path", envPath, "error", err)
	}

	if exe, err := exec.LookPath("cline"); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), coreScript)
		if fileExists(candidate) {
			clinekitlog.Debug("resolved core script from PATH executable", "path", candidate)
			return candidate, nil
		}
	}

	if root, err := npmGlobalRoot(); err == nil {
		candidate := filepath.Join(root, "cline", coreScript)
		if fileExists(candidate) {
			clinekitlog.Debug("resolved core script from global npm root", "path", candidate)
			return candidate, nil
		}
	} else {
		clinekitlog.Debug("could not determine global npm root", "error", err)
	}

	return "", fmt.Errorf("%s not found: install cline globally with 'npm install -g cline', or point %s or --cline-path at it", coreScript, EnvClinePath)
}

// resolveFromPath interprets a user-supplied path as the core script,
// a directory containing it, or an executable living next to it.
func resolveFromPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("provided cline path does not exist: %s", path)
	}

	if info.IsDir() {
		candidate := filepath.Join(path, coreScript)
		if fileExists(candidate) {
			return candidate, nil
		}
		return "", fmt.Errorf("%s not found in directory %s", coreScript, path)
	}

	if filepath.Base(path) == coreScript {
		return path, nil
	}

	candidate := filepath.Join(filepath.Dir(path), coreScript)
	if fileExists(candidate) {
		return candidate, nil
	}
	return "", fmt.Errorf("%s not found next to %s", coreScript, path)
}

func npmGlobalRoot() (string, error) {
	out, err := exec.Command("npm", "root", "-g").Output()
	if err != nil {
		return "", fmt.Errorf("npm root -g failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
