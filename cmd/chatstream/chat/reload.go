package chatcmder

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// windowSetter is the part of the controller a config reload touches.
type windowSetter interface {
	SetHistoryWindow(n int)
}

// watchConfig applies edits to chat.history_window in config.toml while a
// session is running. Other keys only take effect on the next start.
func watchConfig(v *viper.Viper, target windowSetter, log *slog.Logger) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(onConfigChange(v, target, log))
	v.WatchConfig()
}

func onConfigChange(v *viper.Viper, target windowSetter, log *slog.Logger) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		n := v.GetInt("chat.history_window")
		if n <= 0 {
			log.Warn("ignoring invalid history window from config", "file", e.Name, "history_window", n)
			return
		}

		target.SetHistoryWindow(n)
		log.Info("config reloaded", "file", e.Name, "history_window", n)
	}
}
