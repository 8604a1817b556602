//go:build !windows

package i18n

// getPlatformLocales returns nil; Unix locales come from the environment.
func getPlatformLocales() []string {
	return nil
}
