// Package prereqs checks, at startup, whether the host platform is one the
// coordinator is built and tested for.
package prereqs

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "prereqs")

// Minimum macOS version; older Darwin kernels miss kqueue behavior the
// bolt mmap path relies on.
const (
	minDarwinMajor = 10
	minDarwinMinor = 14
)

var (
	// Overridable for tests.
	execShellOutput = runCommand
	runtimeOS       = runtime.GOOS
	runtimeArch     = runtime.GOARCH
)

// supportedTargets holds the os/arch pairs release binaries are built for.
var supportedTargets = map[string]bool{
	"linux/amd64":   true,
	"linux/arm64":   true,
	"darwin/amd64":  true,
	"windows/amd64": true,
}

func runCommand(ctx context.Context, command string, args ...string) (string, error) {
	result, err := exec.CommandContext(ctx, command, args...).Output() // #nosec G204
	if err != nil {
		return "", errors.Wrap(err, "error in command execution")
	}
	return string(result), nil
}

// parseVersion splits input on sep and parses the first num components as
// integers.
func parseVersion(input string, num int, sep string) ([]int, error) {
	components := strings.Split(input, sep)
	if len(components) < num {
		return nil, errors.New("insufficient information about version")
	}
	version := make([]int, num)
	for i := range version {
		n, err := strconv.Atoi(strings.TrimSpace(components[i]))
		if err != nil {
			return nil, errors.Wrap(err, "error during conversion")
		}
		version[i] = n
	}
	return version, nil
}

// darwinMeetsMinVersion asks the kernel for its version and compares it
// against the supported minimum.
func darwinMeetsMinVersion(ctx context.Context) (bool, error) {
	versionStr, err := execShellOutput(ctx, "uname", "-r")
	if err != nil {
		return false, errors.Wrap(err, "error obtaining MacOS version")
	}
	version, err := parseVersion(versionStr, 2, ".")
	if err != nil {
		return false, errors.Wrap(err, "error parsing version")
	}
	if version[0] != minDarwinMajor {
		return version[0] > minDarwinMajor, nil
	}
	return version[1] >= minDarwinMinor, nil
}

// meetsMinPlatformReqs reports whether the runtime os/arch pair is a
// supported build target, with the extra version gate on macOS.
func meetsMinPlatformReqs(ctx context.Context) (bool, error) {
	if !supportedTargets[runtimeOS+"/"+runtimeArch] {
		return false, nil
	}
	if runtimeOS == "darwin" {
		return darwinMeetsMinVersion(ctx)
	}
	return true, nil
}

// WarnIfPlatformNotSupported logs a warning when the host is not a
// supported platform or the platform cannot be detected. The coordinator
// still starts; operators run unsupported targets at their own risk.
func WarnIfPlatformNotSupported(ctx context.Context) {
	supported, err := meetsMinPlatformReqs(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to detect host platform")
		return
	}
	if !supported {
		log.Warn("This platform is not supported. The following platforms are supported: Linux/AMD64," +
			" Linux/ARM64, Mac OS X/AMD64 (10.14+ only), and Windows/AMD64")
	}
}
