package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	BuildName string = ""
)

const (
	LinkWriter    = "writer"
	LinkWebSocket = "websocket"
	LinkStore     = "store"
	LinkDiscard   = "discard"
)

type BatchConfig struct {
	Rounds         int    `json:"rounds"`
	BufferSize     int    `json:"bufferSize"`
	MaxFrameSize   int    `json:"maxFrameSize"`
	MessagePercent int    `json:"messagePercent"`
	HighPercent    int    `json:"highPercent"`
	PoolSize       int    `json:"poolSize"`
	Seed           int64  `json:"seed"`
	ResultFile     string `json:"resultFile"`
}

type OptionMap map[string]interface{}

func (o OptionMap) GetInt(key string) (i int) {
	if v, ok := o[key]; ok {
		i = cast.ToInt(v)
	}
	return
}

func (o OptionMap) GetString(key string) (s string) {
	if v, ok := o[key]; ok {
		s = cast.ToString(v)
	}
	return
}

func (o OptionMap) GetStringSlice(key string) (s []string) {
	if v, ok := o[key]; ok {
		s = cast.ToStringSlice(v)
	}
	return
}

func (o OptionMap) GetDuration(key string) (d time.Duration) {
	if v, ok := o[key]; ok {
		d = cast.ToDuration(v)
	}
	return
}

func (o OptionMap) GetBool(key string, defaultValue bool) (b bool) {
	b = defaultValue
	if v, ok := o[key]; ok {
		b = cast.ToBool(v)
	}
	return
}

type Config struct {
	Name            string               `json:"name"`
	BufferSize      int                  `json:"bufferSize"`
	MessagePoolSize int                  `json:"messagePoolSize"`
	MessageSize     int                  `json:"messageSize"`
	DebugPort       int                  `json:"debugPort"`
	DebugModules    []string             `json:"debugModules"`
	LogLevel        string               `json:"logLevel"`
	LogFile         string               `json:"logFile"`
	DisableDebug    bool                 `json:"disableDebug"`
	Link            string               `json:"link"`
	Sinks           map[string]OptionMap `json:"sinks"`
	HeartbeatSpec   string               `json:"heartbeatSpec"`
	InputFile       string               `json:"inputFile"`
	StateFile       string               `json:"stateFile"`
	Fork            bool                 `json:"fork"`
	Batch           *BatchConfig         `json:"batch"`
}

func init() {
	pflag.String("name", "", "name of the buffer")
	pflag.Int("bufferSize", 0, "frame buffer size in bytes")
	pflag.String("link", "", "link sink: writer, websocket, store or discard")
	pflag.String("input", "", "replay an hdlc capture into the inbound buffer")
	pflag.String("heartbeat", "", "cron spec of the heartbeat frame")
	pflag.String("configFile", "", "use custom config file")
	pflag.String("config", "", "use custom config file")
	pflag.String("debugModules", "", "open debug modules")
	pflag.Bool("version", false, "version info")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	err := viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		fmt.Println("bind flags error:", err)
	}
}

func GetDefaultConfig() Config {
	return Config{
		Name:            "ncp",
		BufferSize:      4096,
		MessagePoolSize: 16,
		MessageSize:     1280,
		DebugPort:       19022,
		LogLevel:        "info",
		Link:            LinkWriter,
		HeartbeatSpec:   "*/5 * * * * *",
		Sinks:           map[string]OptionMap{},
	}
}

func GetDefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Rounds:         10000,
		BufferSize:     512,
		MaxFrameSize:   96,
		MessagePercent: 20,
		HighPercent:    25,
		PoolSize:       32,
		Seed:           1,
		ResultFile:     "batch_result.json",
	}
}

// ParseConfig reads flags and the json config file. Flags set on the command
// line win over the file.
func ParseConfig() Config {
	pflag.Parse()
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./conf")

	file := viper.GetString("configFile")
	if file == "" {
		file = viper.GetString("config")
	}
	if file != "" {
		viper.SetConfigFile(file)
	}
	config := GetDefaultConfig()

	err := viper.ReadInConfig()
	if err == nil {
		err = viper.Unmarshal(&config)
		if err != nil {
			fmt.Println("read config file error:", err)
		}
	}

	applyFlags(&config)
	return config
}

func applyFlags(config *Config) {
	if name := viper.GetString("name"); name != "" {
		config.Name = name
	}
	if size := viper.GetInt("bufferSize"); size > 0 {
		config.BufferSize = size
	}
	if link := viper.GetString("link"); link != "" {
		config.Link = link
	}
	if input := viper.GetString("input"); input != "" {
		config.InputFile = input
	}
	if spec := viper.GetString("heartbeat"); spec != "" {
		config.HeartbeatSpec = spec
	}
	if modules := viper.GetString("debugModules"); modules != "" {
		config.DebugModules = strings.FieldsFunc(modules, func(r rune) bool {
			return r == ',' || r == ' '
		})
	}
}

// SinkOptions returns the options of the named sink, never nil.
func (c *Config) SinkOptions(name string) OptionMap {
	if opts, ok := c.Sinks[name]; ok && opts != nil {
		return opts
	}
	return OptionMap{}
}

func VersionOnly() bool {
	return viper.GetBool("version")
}

func GetString(key string) string {
	return viper.GetString(key)
}

func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetInt(key string) int {
	return viper.GetInt(key)
}

func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}
