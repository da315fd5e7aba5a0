package chatcmder

import (
	"github.com/fsnotify/fsnotify"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatstream/pkg/logger"
)

type recordingSetter struct {
	windows []int
}

func (r *recordingSetter) SetHistoryWindow(n int) {
	r.windows = append(r.windows, n)
}

var _ = Describe("onConfigChange", func() {
	var (
		v      *viper.Viper
		setter *recordingSetter
	)

	BeforeEach(func() {
		v = viper.New()
		setter = &recordingSetter{}
	})

	It("applies the history window on write", func() {
		v.Set("chat.history_window", 7)
		onConfigChange(v, setter, logger.Nop())(fsnotify.Event{Name: "config.toml", Op: fsnotify.Write})
		Expect(setter.windows).To(Equal([]int{7}))
	})

	It("ignores events that do not change the file", func() {
		v.Set("chat.history_window", 7)
		onConfigChange(v, setter, logger.Nop())(fsnotify.Event{Name: "config.toml", Op: fsnotify.Chmod})
		Expect(setter.windows).To(BeEmpty())
	})

	It("ignores a non-positive window", func() {
		v.Set("chat.history_window", 0)
		onConfigChange(v, setter, logger.Nop())(fsnotify.Event{Name: "config.toml", Op: fsnotify.Create})
		Expect(setter.windows).To(BeEmpty())
	})
})

var _ = Describe("watchConfig", func() {
	It("does nothing without a config file", func() {
		setter := &recordingSetter{}
		Expect(func() { watchConfig(viper.New(), setter, logger.Nop()) }).NotTo(Panic())
		Expect(func() { watchConfig(nil, setter, logger.Nop()) }).NotTo(Panic())
	})
})
