package display

// SupportedResolutions returns the resolution presets offered to remote
// viewers, ordered smallest to largest. The companion configuration
// process reads this list from the broadcast segment.
func SupportedResolutions() []Resolution {
	return []Resolution{
		{640, 480},
		{800, 600},
		{1024, 768},
		{1152, 864},
		{1280, 720},
		{1280, 800},
		{1280, 1024},
		{1366, 768},
		{1440, 900},
		{1600, 900},
		{1600, 1200},
		{1680, 1050},
		{1920, 1080},
		{1920, 1200},
		{2048, 1152},
		{2560, 1080},
		{2560, 1440},
		{2560, 1600},
		{3440, 1440},
		{3840, 2160},
		{5120, 1440},
		{5120, 2880},
		{7680, 4320},
	}
}
