package tools

import (
	"os"
	"runtime/debug"
	"strings"

	"github.com/aquilax/truncate"
)

func PackageVersion(name string) string {
	bi, ok := debug.ReadBuildInfo()
	if ok {
		for _, dep := range bi.Deps {
			if dep.Path == name {
				return dep.Version
			}
		}
	}
	return "unknown"
}

// MainVersion returns the module version of the running binary
func MainVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "unknown"
	}
	return bi.Main.Version
}

// ShortDigest trims a digest to its algorithm and the first 12 hex characters
func ShortDigest(digest string) string {
	algo, hex, ok := strings.Cut(digest, ":")
	if !ok {
		return truncate.Truncate(digest, 12, "", truncate.PositionEnd)
	}
	return algo + ":" + truncate.Truncate(hex, 12, "", truncate.PositionEnd)
}

// JoinTruncated joins items with sep, cutting the result to max characters
func JoinTruncated(items []string, sep string, max int) string {
	return truncate.Truncate(strings.Join(items, sep), max, "...", truncate.PositionEnd)
}

func FileContent(path string) []byte {
	b, _ := os.ReadFile(path)
	return b
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
