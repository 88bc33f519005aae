package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/edwinhayes/rosviz/viz"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Environment variables read by FromArgs.
const (
	EnvDirectoryURL = "VIZ_DIRECTORY_URL"
	EnvLogLevel     = "VIZ_LOG_LEVEL"
)

// View is one view opened at startup with a single binding.
type View struct {
	TypeName string `yaml:"type"`
	Topic    string `yaml:"topic"`
}

// Config is the console configuration.
type Config struct {
	DirectoryURL        string        `yaml:"directory_url"`
	DataRetryDelay      time.Duration `yaml:"data_retry_delay"`
	DirectoryRetryDelay time.Duration `yaml:"directory_retry_delay"`
	DecodeWorkers       int           `yaml:"decode_workers"`
	DecodeQueueLen      int           `yaml:"decode_queue_len"`
	RecordQueueLen      int           `yaml:"record_queue_len"`
	LogLevel            string        `yaml:"log_level"`
	MetricsAddr         string        `yaml:"metrics_addr"` // empty disables the endpoint
	ClientID            string        `yaml:"client_id"`
	Views               []View        `yaml:"views"`
}

func Default() *Config {
	return &Config{
		DirectoryURL:        "ws://localhost:8082",
		DataRetryDelay:      viz.DefaultRetryDelay,
		DirectoryRetryDelay: viz.DefaultRetryDelay,
		DecodeWorkers:       4,
		DecodeQueueLen:      8,
		RecordQueueLen:      100,
		LogLevel:            "info",
		ClientID:            viz.NewClientID(),
	}
}

// Load reads a YAML file over the values already in c. Keys missing from
// the file keep their current value.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDirectoryURL); ok && v != "" {
		c.DirectoryURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.DirectoryURL)
	if err != nil {
		return errors.Wrap(err, "directory url")
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return errors.Errorf("directory url %q is not a websocket url", c.DirectoryURL)
	}
	if c.DataRetryDelay <= 0 || c.DirectoryRetryDelay <= 0 {
		return errors.New("retry delays must be positive")
	}
	if c.DecodeWorkers <= 0 {
		return errors.Errorf("decode workers must be positive, got %d", c.DecodeWorkers)
	}
	if c.DecodeQueueLen <= 0 || c.RecordQueueLen <= 0 {
		return errors.New("queue lengths must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	for _, v := range c.Views {
		if v.TypeName == "" || v.Topic == "" {
			return errors.Errorf("view %+v needs a type and a topic", v)
		}
	}
	return nil
}

// Level returns the parsed log level. Call Validate first.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// ConsoleOptions maps the configuration onto a console.
func (c *Config) ConsoleOptions(logger *logrus.Entry, metrics *viz.Metrics) viz.ConsoleOptions {
	return viz.ConsoleOptions{
		DirectoryURL:        c.DirectoryURL,
		Dialer:              &viz.WebsocketDialer{ClientID: c.ClientID},
		DecodeWorkers:       c.DecodeWorkers,
		DecodeQueueLen:      c.DecodeQueueLen,
		RecordQueueLen:      c.RecordQueueLen,
		DataRetryDelay:      c.DataRetryDelay,
		DirectoryRetryDelay: c.DirectoryRetryDelay,
		Logger:              logger,
		Metrics:             metrics,
	}
}

// ParseView parses a "type=topic" binding.
func ParseView(s string) (View, error) {
	i := strings.Index(s, "=")
	if i <= 0 || i == len(s)-1 {
		return View{}, errors.Errorf("view %q is not of the form type=topic", s)
	}
	return View{TypeName: s[:i], Topic: s[i+1:]}, nil
}

// FromArgs builds the configuration of a console binary. Sources apply in
// order: defaults, the file named by --config, the environment, then the
// flags actually given on the command line. pflag.ErrHelp is returned
// as is.
func FromArgs(name string, args []string) (*Config, error) {
	return fromArgs(name, args, os.LookupEnv)
}

func fromArgs(name string, args []string, lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	flags := *c
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	path := fs.String("config", "", "YAML configuration file")
	fs.StringVar(&flags.DirectoryURL, "directory", c.DirectoryURL, "directory control channel url")
	fs.DurationVar(&flags.DataRetryDelay, "data-retry", c.DataRetryDelay, "reconnect delay of data channels")
	fs.DurationVar(&flags.DirectoryRetryDelay, "directory-retry", c.DirectoryRetryDelay, "reconnect delay of the control channel")
	fs.IntVar(&flags.DecodeWorkers, "decode-workers", c.DecodeWorkers, "number of decode workers")
	fs.IntVar(&flags.DecodeQueueLen, "decode-queue", c.DecodeQueueLen, "frames queued per decode worker")
	fs.IntVar(&flags.RecordQueueLen, "record-queue", c.RecordQueueLen, "decoded records queued for the views")
	fs.StringVar(&flags.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&flags.MetricsAddr, "metrics", c.MetricsAddr, "listen address of the metrics endpoint")
	fs.StringVar(&flags.ClientID, "client-id", "", "client id sent on every handshake (default random)")
	views := fs.StringArray("view", nil, "open a view bound to type=topic (repeatable)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *path != "" {
		if err := c.Load(*path); err != nil {
			return nil, err
		}
	}
	c.applyEnv(lookup)

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "directory":
			c.DirectoryURL = flags.DirectoryURL
		case "data-retry":
			c.DataRetryDelay = flags.DataRetryDelay
		case "directory-retry":
			c.DirectoryRetryDelay = flags.DirectoryRetryDelay
		case "decode-workers":
			c.DecodeWorkers = flags.DecodeWorkers
		case "decode-queue":
			c.DecodeQueueLen = flags.DecodeQueueLen
		case "record-queue":
			c.RecordQueueLen = flags.RecordQueueLen
		case "log-level":
			c.LogLevel = flags.LogLevel
		case "metrics":
			c.MetricsAddr = flags.MetricsAddr
		case "client-id":
			c.ClientID = flags.ClientID
		}
	})
	for _, s := range *views {
		v, err := ParseView(s)
		if err != nil {
			return nil, err
		}
		c.Views = append(c.Views, v)
	}
	if c.ClientID == "" {
		c.ClientID = viz.NewClientID()
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return c, nil
}
