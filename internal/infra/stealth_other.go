//go:build !linux

package infra

func newPlatformNamer() ProcessNamer {
	return unsupportedNamer{}
}
