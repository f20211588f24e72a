// Package fileutil includes useful filesystem operations with hardened
// permission handling for coordinator data.
package fileutil

import (
	"io"
	"io/ioutil"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	dirPermissions  = os.FileMode(0700)
	filePermissions = os.FileMode(0600)
)

// ExpandPath given a string which may be a relative path.
// 1. replace tilde with users home dir
// 2. expands embedded environment variables
// 3. cleans the path
func ExpandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Abs(path.Clean(os.ExpandEnv(p)))
}

// HomeDir returns the home directory of the current user.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	logrus.Error("Could not determine a home directory")
	return ""
}

// MkdirAll takes in a path, expands it if necessary, and creates the
// directory with 0700 permissions. An already existing directory with
// looser permissions is refused.
func MkdirAll(dirPath string) error {
	expanded, err := ExpandPath(dirPath)
	if err != nil {
		return err
	}
	exists, err := HasDir(expanded)
	if err != nil {
		return err
	}
	if exists {
		info, err := os.Stat(expanded)
		if err != nil {
			return err
		}
		if info.Mode().Perm() != dirPermissions {
			return errors.Errorf("dir already exists without proper 0700 permissions: %s", expanded)
		}
		return nil
	}
	return os.MkdirAll(expanded, dirPermissions)
}

// HasDir checks if a directory exists at the given path.
func HasDir(dirPath string) (bool, error) {
	fullPath, err := ExpandPath(dirPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if info == nil {
		return false, err
	}
	return info.IsDir(), err
}

// FileExists returns true if a file is not a directory and exists at the
// specified path.
func FileExists(filename string) bool {
	filePath, err := ExpandPath(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return info != nil && !info.IsDir()
}

// WriteFile writes data to a file with 0600 permissions, refusing to
// overwrite a file that is readable by others.
func WriteFile(file string, data []byte) error {
	expanded, err := ExpandPath(file)
	if err != nil {
		return err
	}
	if FileExists(expanded) {
		info, err := os.Stat(expanded)
		if err != nil {
			return err
		}
		if info.Mode() != filePermissions {
			return errors.Errorf("file already exists without proper 0600 permissions: %s", expanded)
		}
	}
	return ioutil.WriteFile(expanded, data, filePermissions)
}

// CopyFile copies a file from src to dst with 0600 permissions.
func CopyFile(src, dst string) error {
	fds, err := os.Open(src) // #nosec G304
	if err != nil {
		return err
	}
	defer func() {
		if err := fds.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close file")
		}
	}()
	fdd, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePermissions) // #nosec G304
	if err != nil {
		return err
	}
	defer func() {
		if err := fdd.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close file")
		}
	}()
	_, err = io.Copy(fdd, fds)
	return err
}
