// Package config loads the engine configuration with viper.
//
// The YAML file uses `l3engine:` as root key. Every key can be overridden from
// the environment: key "l3engine.local.ip" maps to L3ENGINE_LOCAL_IP.
package config

import (
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/google/netstack/tcpip"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"l3engine/pkg/capture"
	"l3engine/pkg/engine"
	"l3engine/pkg/mbuf"
	"l3engine/pkg/ring"
	"l3engine/pkg/util"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port    PortConfig    `mapstructure:"port"`
	Local   LocalConfig   `mapstructure:"local"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Capture CaptureConfig `mapstructure:"capture"`
	Log     LogConfig     `mapstructure:"log"`
}

// UDP tunnel carrying the Ethernet frames
type PortConfig struct {
	Name         string `mapstructure:"name"`
	Listen       string `mapstructure:"listen"`
	Peer         string `mapstructure:"peer"`
	PollInterval string `mapstructure:"poll_interval"`
}

// Addresses the engine answers for
type LocalConfig struct {
	IP  string `mapstructure:"ip"`
	MAC string `mapstructure:"mac"` // empty = reply from the request's destination
}

type PoolConfig struct {
	Size     int `mapstructure:"size"`
	DataRoom int `mapstructure:"data_room"`
}

type EngineConfig struct {
	BurstSize int  `mapstructure:"burst_size"`
	RingSize  int  `mapstructure:"ring_size"`
	Workers   int  `mapstructure:"workers"`
	EchoReply bool `mapstructure:"echo_reply"`
	// Log IPv4 traffic that is not answered instead of dropping it silently
	Trace bool `mapstructure:"trace"`
}

type CaptureConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Snaplen int    `mapstructure:"snaplen"`
}

type LogConfig struct {
	Level string           `mapstructure:"level"` // debug / info / warn / error
	File  FileOutputConfig `mapstructure:"file"`
}

type FileOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

type configRoot struct {
	L3Engine Config `mapstructure:"l3engine"`
}

// Load reads the configuration from path. An empty path uses the defaults
// and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg := root.L3Engine

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("l3engine.port.name", "eth0")
	v.SetDefault("l3engine.port.listen", "127.0.0.1:5000")
	v.SetDefault("l3engine.port.peer", "127.0.0.1:5001")
	v.SetDefault("l3engine.port.poll_interval", "100ms")

	v.SetDefault("l3engine.local.ip", "10.0.0.1")
	v.SetDefault("l3engine.local.mac", "")

	v.SetDefault("l3engine.pool.size", mbuf.DEFAULT_POOL_SIZE)
	v.SetDefault("l3engine.pool.data_room", mbuf.DEFAULT_DATA_ROOM)

	v.SetDefault("l3engine.engine.burst_size", util.DEFAULT_BURST_SIZE)
	v.SetDefault("l3engine.engine.ring_size", ring.DEFAULT_RING_CAPACITY)
	v.SetDefault("l3engine.engine.workers", 1)
	v.SetDefault("l3engine.engine.echo_reply", true)
	v.SetDefault("l3engine.engine.trace", false)

	v.SetDefault("l3engine.capture.enabled", false)
	v.SetDefault("l3engine.capture.path", "l3engine.pcap")
	v.SetDefault("l3engine.capture.snaplen", capture.DEFAULT_SNAPLEN)

	v.SetDefault("l3engine.log.level", "info")
	v.SetDefault("l3engine.log.file.enabled", false)
	v.SetDefault("l3engine.log.file.path", "l3engine.log")
	v.SetDefault("l3engine.log.file.max_size_mb", 100)
	v.SetDefault("l3engine.log.file.max_age_days", 30)
	v.SetDefault("l3engine.log.file.max_backups", 5)
	v.SetDefault("l3engine.log.file.compress", true)
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}

// Validate checks every field that is parsed later on.
func (cfg *Config) Validate() error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log level %q (must be debug/info/warn/error)", cfg.Log.Level)
	}

	if cfg.Port.Name == "" {
		return invalid("port name is required")
	}
	if _, err := netip.ParseAddrPort(cfg.Port.Listen); err != nil {
		return invalid("port listen %q: %v", cfg.Port.Listen, err)
	}
	if _, err := netip.ParseAddrPort(cfg.Port.Peer); err != nil {
		return invalid("port peer %q: %v", cfg.Port.Peer, err)
	}
	if d, err := time.ParseDuration(cfg.Port.PollInterval); err != nil || d <= 0 {
		return invalid("port poll_interval %q", cfg.Port.PollInterval)
	}

	if _, err := util.ParseIPv4(cfg.Local.IP); err != nil {
		return invalid("local ip %q", cfg.Local.IP)
	}
	if cfg.Local.MAC != "" {
		mac, err := net.ParseMAC(cfg.Local.MAC)
		if err != nil || len(mac) != 6 {
			return invalid("local mac %q", cfg.Local.MAC)
		}
	}

	if cfg.Pool.Size <= 0 {
		return invalid("pool size %d", cfg.Pool.Size)
	}
	if cfg.Pool.DataRoom < util.MAX_FRAME_SIZE {
		return invalid("pool data_room %d is below the %d byte frame size", cfg.Pool.DataRoom, util.MAX_FRAME_SIZE)
	}

	if cfg.Engine.BurstSize <= 0 || cfg.Engine.RingSize <= 0 || cfg.Engine.Workers <= 0 {
		return invalid("engine burst_size, ring_size and workers must be positive")
	}
	if cfg.Engine.BurstSize > cfg.Pool.Size {
		return invalid("engine burst_size %d exceeds pool size %d", cfg.Engine.BurstSize, cfg.Pool.Size)
	}

	if cfg.Capture.Enabled && cfg.Capture.Path == "" {
		return invalid("capture path is required when capture is enabled")
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return invalid("log file path is required when file output is enabled")
	}
	return nil
}

// EngineConfig converts the validated configuration for engine.New
func (cfg *Config) EngineConfig() (engine.Config, error) {
	ip, err := util.ParseIPv4(cfg.Local.IP)
	if err != nil {
		return engine.Config{}, errors.Wrap(err, "local ip")
	}
	var mac tcpip.LinkAddress
	if cfg.Local.MAC != "" {
		hw, err := net.ParseMAC(cfg.Local.MAC)
		if err != nil {
			return engine.Config{}, errors.Wrap(err, "local mac")
		}
		mac = tcpip.LinkAddress(hw)
	}
	return engine.Config{
		LocalIP:   ip,
		LocalMAC:  mac,
		BurstSize: cfg.Engine.BurstSize,
		RingSize:  cfg.Engine.RingSize,
		Workers:   cfg.Engine.Workers,
		EchoReply: cfg.Engine.EchoReply,
	}, nil
}

// Listen, peer and poll interval of the port
func (cfg *Config) PortAddrs() (netip.AddrPort, netip.AddrPort, time.Duration, error) {
	listen, err := netip.ParseAddrPort(cfg.Port.Listen)
	if err != nil {
		return netip.AddrPort{}, netip.AddrPort{}, 0, errors.Wrap(err, "port listen")
	}
	peer, err := netip.ParseAddrPort(cfg.Port.Peer)
	if err != nil {
		return netip.AddrPort{}, netip.AddrPort{}, 0, errors.Wrap(err, "port peer")
	}
	poll, err := time.ParseDuration(cfg.Port.PollInterval)
	if err != nil {
		return netip.AddrPort{}, netip.AddrPort{}, 0, errors.Wrap(err, "port poll_interval")
	}
	return listen, peer, poll, nil
}

func (cfg *Config) LogOptions() util.LogOptions {
	opts := util.LogOptions{Level: cfg.Log.Level}
	if cfg.Log.File.Enabled {
		opts.File = cfg.Log.File.Path
		opts.MaxSizeMB = cfg.Log.File.MaxSizeMB
		opts.MaxBackups = cfg.Log.File.MaxBackups
		opts.MaxAgeDays = cfg.Log.File.MaxAgeDays
		opts.Compress = cfg.Log.File.Compress
	}
	return opts
}
