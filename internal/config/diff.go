package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields are reported individually; everything else is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PlaybackChanged bool
	NewPlayback     PlaybackConfig

	NotifyChanged bool
	NewNotify     NotifyConfig

	// RestartRequired names the top-level sections that changed but only
	// take effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PlaybackChanged && !d.NotifyChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Playback != new.Playback {
		d.PlaybackChanged = true
		d.NewPlayback = new.Playback
	}
	if old.Notify != new.Notify {
		d.NotifyChanged = true
		d.NewNotify = new.Notify
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	restart := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"audio", old.Audio, new.Audio},
		{"settings", old.Settings, new.Settings},
		{"script", old.Script, new.Script},
		{"voice_guard", old.VoiceGuard, new.VoiceGuard},
	}
	for _, r := range restart {
		if !reflect.DeepEqual(r.old, r.new) {
			d.RestartRequired = append(d.RestartRequired, r.name)
		}
	}
	return d
}
