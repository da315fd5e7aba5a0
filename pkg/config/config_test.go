package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).NotTo(BeNil())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Version).To(Equal(defaults.Version))
			Expect(cfg.Client.Endpoint).To(Equal(defaults.Client.Endpoint))
			Expect(cfg.Client.Model).To(Equal(defaults.Client.Model))
			Expect(cfg.Chat.HistoryWindow).To(Equal(defaults.Chat.HistoryWindow))
			Expect(cfg.Chat.Greeting).To(Equal(defaults.Chat.Greeting))
			Expect(cfg.Chat.RequestTimeout).To(Equal(defaults.Chat.RequestTimeout))
			Expect(cfg.Mock.Listen).To(Equal(defaults.Mock.Listen))
		})

		It("loads all config fields", func() {
			data := `version = 0

[client]
endpoint = "http://localhost:8090/v1/chat/completions"
model = "gpt-4o-mini"

[chat]
history_window = 12
greeting = "Hi there."
request_timeout = "2m"

[mock]
listen = ":9999"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Client.Endpoint).To(Equal("http://localhost:8090/v1/chat/completions"))
			Expect(cfg.Client.Model).To(Equal("gpt-4o-mini"))
			Expect(cfg.Chat.HistoryWindow).To(Equal(uint(12)))
			Expect(cfg.Chat.Greeting).To(Equal("Hi there."))
			Expect(cfg.Chat.RequestTimeout).To(Equal("2m"))
			Expect(cfg.Mock.Listen).To(Equal(":9999"))
		})

		It("fills in defaults for unset fields in a partial config", func() {
			data := `[client]
model = "gpt-4.1"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Client.Model).To(Equal("gpt-4.1"))
			Expect(cfg.Client.Endpoint).To(Equal(defaults.Client.Endpoint))
			Expect(cfg.Chat.HistoryWindow).To(Equal(defaults.Chat.HistoryWindow))
			Expect(cfg.Chat.RequestTimeout).To(Equal(defaults.Chat.RequestTimeout))
			Expect(cfg.Mock.Listen).To(Equal(defaults.Mock.Listen))
		})

		It("returns error for malformed TOML", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not valid toml [[["), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(cfg).To(BeNil())
		})

		It("returns error for unsupported config version", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("version = 3\n"), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported config version"))
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Client.Model = "gpt-4o-mini"
			Expect(c.SaveConfig(cfg)).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`model = "gpt-4o-mini"`))

			info, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(HaveOccurred())
		})
	})

	Describe("SetConfigValue", func() {
		It("sets a string config key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("client.endpoint", "http://127.0.0.1:8090/v1/chat/completions")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Client.Endpoint).To(Equal("http://127.0.0.1:8090/v1/chat/completions"))
		})

		It("sets a uint config key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("chat.history_window", "9")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Chat.HistoryWindow).To(Equal(uint(9)))
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("proxy.upstream", "x")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown config key"))
		})

		It("returns error for invalid uint value", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("chat.history_window", "lots")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chat.history_window"))
		})

		It("rejects request timeouts that are not durations", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("chat.request_timeout", "forever")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chat.request_timeout"))
		})

		It("preserves existing values when setting a new key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("client.model", "gpt-4.1")).To(Succeed())
			Expect(c.SetConfigValue("mock.listen", ":7070")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Client.Model).To(Equal("gpt-4.1"))
			Expect(cfg.Mock.Listen).To(Equal(":7070"))
		})
	})

	Describe("GetConfigValue", func() {
		It("gets a set config value", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("chat.greeting", "Welcome back.")).To(Succeed())

			val, err := c.GetConfigValue("chat.greeting")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("Welcome back."))
		})

		It("returns default value when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("chat.history_window")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("5"))
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.GetConfigValue("nonexistent")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidConfigKeys", func() {
		It("returns keys in stable order", func() {
			Expect(config.ValidConfigKeys()).To(Equal([]string{
				"client.endpoint",
				"client.model",
				"chat.history_window",
				"chat.greeting",
				"chat.request_timeout",
				"mock.listen",
			}))
		})
	})

	Describe("IsValidConfigKey", func() {
		It("returns true for valid keys", func() {
			for _, key := range config.ValidConfigKeys() {
				Expect(config.IsValidConfigKey(key)).To(BeTrue(), "expected %q to be valid", key)
			}
		})

		It("returns false for invalid keys", func() {
			Expect(config.IsValidConfigKey("")).To(BeFalse())
			Expect(config.IsValidConfigKey("model")).To(BeFalse())
		})
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).NotTo(BeNil())
		Expect(cfg.Client.Model).To(BeEmpty())
	})

	It("returns error for invalid TOML", func() {
		cfg, err := config.ParseConfigTOML([]byte("not valid [[["))
		Expect(err).To(HaveOccurred())
		Expect(cfg).To(BeNil())
	})
})

var _ = Describe("NewDefaultConfig", func() {
	It("returns fully-populated defaults", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Client.Endpoint).To(Equal("https://api.openai.com/v1/chat/completions"))
		Expect(cfg.Client.Model).To(Equal("gpt-4o"))
		Expect(cfg.Chat.HistoryWindow).To(Equal(uint(5)))
		Expect(cfg.Chat.Greeting).To(Equal("Hello! How can I help you?"))
		Expect(cfg.Chat.RequestTimeout).To(Equal("0s"))
		Expect(cfg.Mock.Listen).To(Equal("127.0.0.1:8090"))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("client.endpoint")).To(Equal(defaults.Client.Endpoint))
		Expect(v.GetString("client.model")).To(Equal(defaults.Client.Model))
		Expect(v.GetUint("chat.history_window")).To(Equal(defaults.Chat.HistoryWindow))
		Expect(v.GetString("mock.listen")).To(Equal(defaults.Mock.Listen))
	})

	It("reads config file values over defaults", func() {
		data := `[client]
model = "gpt-4o-mini"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("client.model")).To(Equal("gpt-4o-mini"))
		defaults := config.NewDefaultConfig()
		Expect(v.GetString("client.endpoint")).To(Equal(defaults.Client.Endpoint))
	})

	It("env vars take precedence over config file values", func() {
		data := `[chat]
history_window = 3
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		os.Setenv("CHATSTREAM_CHAT_HISTORY_WINDOW", "8")
		defer os.Unsetenv("CHATSTREAM_CHAT_HISTORY_WINDOW")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetInt("chat.history_window")).To(Equal(8))
	})
})

var _ = Describe("ParseRequestTimeout", func() {
	It("parses the configured duration", func() {
		d, err := config.ParseRequestTimeout("90s")
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(90 * time.Second))
	})

	It("treats empty and zero as no timeout", func() {
		for _, s := range []string{"", "  ", "0s"} {
			d, err := config.ParseRequestTimeout(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(BeZero())
		}
	})

	It("rejects garbage and negative durations", func() {
		_, err := config.ParseRequestTimeout("soon")
		Expect(err).To(HaveOccurred())

		_, err = config.ParseRequestTimeout("-1s")
		Expect(err).To(MatchError(ContainSubstring("must not be negative")))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bindflag-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := config.FlagSet{
			config.FlagModel: {Name: "model", Shorthand: "m", ViperKey: "client.model", Description: "Model to request completions from"},
		}

		cmd := &cobra.Command{Use: "test"}
		var model string
		config.AddStringFlag(cmd, fs, config.FlagModel, &model)

		err = cmd.Flags().Set("model", "gpt-4.1-nano")
		Expect(err).NotTo(HaveOccurred())

		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagModel})

		Expect(v.GetString("client.model")).To(Equal("gpt-4.1-nano"))
	})

	It("falls through to config when flag not set", func() {
		data := `[mock]
listen = ":5555"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := config.FlagSet{
			config.FlagMockListen: {Name: "listen", Shorthand: "l", ViperKey: "mock.listen", Description: "Address for the mock server to listen on"},
		}

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, fs, config.FlagMockListen, &listen)

		// Do NOT set the flag -- should fall through to config file value
		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagMockListen})

		Expect(v.GetString("mock.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.FlagSet{}, []string{"nonexistent"})

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("client.model")).To(Equal(defaults.Client.Model))
	})

	It("AddUintFlag pulls its default from the config defaults", func() {
		fs := config.FlagSet{
			config.FlagHistoryWindow: {Name: "history-window", Shorthand: "w", ViperKey: "chat.history_window", Description: "Messages sent per request"},
		}

		cmd := &cobra.Command{Use: "test"}
		var window uint
		config.AddUintFlag(cmd, fs, config.FlagHistoryWindow, &window)

		f := cmd.Flags().Lookup("history-window")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("w"))
		Expect(f.Usage).To(Equal("Messages sent per request"))
		Expect(f.DefValue).To(Equal("5"))
	})
})
