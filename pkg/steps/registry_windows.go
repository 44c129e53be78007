//go:build windows

package steps

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// splitKey separates the hive prefix from a key such as HKLM\Software\Vendor.
func splitKey(key string) (registry.Key, string, error) {
	key = strings.ReplaceAll(key, "/", `\`)
	hive, path, _ := strings.Cut(key, `\`)
	switch strings.ToUpper(hive) {
	case "HKLM", "HKEY_LOCAL_MACHINE":
		return registry.LOCAL_MACHINE, path, nil
	case "HKCU", "HKEY_CURRENT_USER":
		return registry.CURRENT_USER, path, nil
	case "HKCR", "HKEY_CLASSES_ROOT":
		return registry.CLASSES_ROOT, path, nil
	case "HKU", "HKEY_USERS":
		return registry.USERS, path, nil
	}
	return 0, "", fmt.Errorf("unknown registry hive in %q", key)
}

func setRegistry(key, name, value, typ string) error {
	hive, path, err := splitKey(key)
	if err != nil {
		return err
	}
	k, _, err := registry.CreateKey(hive, path, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("opening %s: %w", key, err)
	}
	defer k.Close()

	switch strings.ToLower(typ) {
	case "", "string", "sz":
		return k.SetStringValue(name, value)
	case "expand_string", "expand_sz":
		return k.SetExpandStringValue(name, value)
	case "multi_string", "multi_sz":
		return k.SetStringsValue(name, strings.Split(value, ";"))
	case "dword":
		n, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid dword %q: %w", value, err)
		}
		return k.SetDWordValue(name, uint32(n))
	case "qword":
		n, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid qword %q: %w", value, err)
		}
		return k.SetQWordValue(name, n)
	}
	return fmt.Errorf("unsupported registry value type %q", typ)
}

func removeRegistry(key, name string) error {
	hive, path, err := splitKey(key)
	if err != nil {
		return err
	}
	if name == "" {
		return registry.DeleteKey(hive, path)
	}
	k, err := registry.OpenKey(hive, path, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("opening %s: %w", key, err)
	}
	defer k.Close()
	return k.DeleteValue(name)
}
