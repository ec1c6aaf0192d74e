// Package config defines the flat set of options the bootstrap needs and
// binds them from flags and environment via cobra/viper.
package config

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options is the whole configuration surface: one struct, flags bound with
// defaults, no dynamic extension.
type Options struct {
	PublicHost string `mapstructure:"public_host"`

	ForwarderPath string `mapstructure:"forwarder_path"`
	BrokerPath    string `mapstructure:"broker_path"`
	StatePath     string `mapstructure:"state_path"`

	ClientHTTPIP   string `mapstructure:"client_http_ip"`
	ClientHTTPPort int    `mapstructure:"client_http_port"`

	CallbackHTTPIP   string `mapstructure:"callback_http_ip"`
	CallbackHTTPPort int    `mapstructure:"callback_http_port"`

	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`
}

// BindFlags registers every option as a flag on fs with its default value,
// ready for viper to layer environment and config-file overrides on top.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("public-host", "", "publicly reachable host/IP; auto-detected if unset")
	fs.String("forwarder-path", "ffmpeg", "path to the forwarder binary")
	fs.String("broker-path", "srs", "path to the RTMP broker binary")
	fs.String("state-path", "state.json", "path to the state journal")
	fs.String("client-http-ip", "0.0.0.0", "operator API bind address")
	fs.Int("client-http-port", 8080, "operator API bind port")
	fs.String("callback-http-ip", "127.0.0.1", "broker callback bind address")
	fs.Int("callback-http-port", 8081, "broker callback bind port")
	fs.Bool("debug", false, "enable debug logging and the /playground stub on the operator API (no GraphQL explorer is served)")
	fs.Bool("verbose", false, "enable verbose logging")
}

// Load resolves Options from v, which the caller has already bound to flags
// and an optional config file/environment prefix.
func Load(v *viper.Viper) (Options, error) {
	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("config: unmarshaling options: %w", err)
	}
	if opts.ForwarderPath == "" {
		return Options{}, fmt.Errorf("config: forwarder_path is required")
	}
	if opts.BrokerPath == "" {
		return Options{}, fmt.Errorf("config: broker_path is required")
	}
	if opts.StatePath == "" {
		return Options{}, fmt.Errorf("config: state_path is required")
	}
	return opts, nil
}

// ClientAddr is the bind address for the operator HTTP API.
func (o Options) ClientAddr() string {
	return net.JoinHostPort(o.ClientHTTPIP, fmt.Sprint(o.ClientHTTPPort))
}

// CallbackAddr is the bind address for the broker callback HTTP server.
func (o Options) CallbackAddr() string {
	return net.JoinHostPort(o.CallbackHTTPIP, fmt.Sprint(o.CallbackHTTPPort))
}
