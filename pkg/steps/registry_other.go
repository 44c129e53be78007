//go:build !windows

package steps

import "errors"

var errNoRegistry = errors.New("the registry is only available on windows")

func setRegistry(key, name, value, typ string) error { return errNoRegistry }

func removeRegistry(key, name string) error { return errNoRegistry }
