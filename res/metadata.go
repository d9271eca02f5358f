package res

const (
	AppName          = "sethpirith"
	DisplayName      = "Seth Pirith"
	AppVersion       = "1.2.0"
	AppVersionTag    = "v" + AppVersion
	GithubURL        = "https://github.com/pixeleye/sethpirith"
	LatestReleaseURL = GithubURL + "/releases/latest"
	Copyright        = "Copyright © 2024–2026 PixelEye"
)
