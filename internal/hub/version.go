package hub

import "sensorhub/internal/version"

// VersionInfo describes the running build.
type VersionInfo struct {
	Numeric   uint32
	String    string
	BuildTime string
}

func Version() VersionInfo {
	return VersionInfo{
		Numeric:   version.Numeric(),
		String:    version.Version,
		BuildTime: version.BuildTime,
	}
}
