package version

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	// Version is the current application version
	Version = "0.3.0"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Numeric packs Version as major<<16 | minor<<8 | patch. Components beyond
// 255 saturate; an unparsable version yields 0.
func Numeric() uint32 {
	major, minor, patch, ok := Parse(Version)
	if !ok {
		return 0
	}
	clamp := func(v int) uint32 { return uint32(min(v, 255)) }
	return clamp(major)<<16 | clamp(minor)<<8 | clamp(patch)
}

// Parse splits "v1.2.3" or "1.2.3-rc1" into its numeric components.
func Parse(v string) (major, minor, patch int, ok bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], true
}

// String returns a one-line description for logs and -version output.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
