package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-zoox/cli"
	"github.com/go-zoox/fs"
	"github.com/go-zoox/logger"
	"github.com/go-zoox/shadowsocks/core"
	"github.com/tidwall/gjson"
)

const DefaultConfigFile = "config.json"

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "the filepath for configuration",
			Aliases: []string{"c"},
			Value:   DefaultConfigFile,
		},
		&cli.StringFlag{
			Name:    "server",
			Usage:   "server address, or server addresses separated by comma",
			Aliases: []string{"s"},
		},
		&cli.IntFlag{
			Name:    "server-port",
			Usage:   "server port",
			Aliases: []string{"p"},
		},
		&cli.StringFlag{
			Name:    "local-address",
			Usage:   "local binding address",
			Aliases: []string{"b"},
		},
		&cli.IntFlag{
			Name:    "local-port",
			Usage:   "local port",
			Aliases: []string{"l"},
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "password",
			Aliases: []string{"k"},
		},
		&cli.StringFlag{
			Name:    "method",
			Usage:   "encryption method, default: table",
			Aliases: []string{"m"},
		},
		&cli.StringFlag{
			Name:    "timeout",
			Usage:   "timeout in seconds, may be fractional",
			Aliases: []string{"t"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "verbose mode",
			Aliases: []string{"v"},
		},
	}
}

// loadConfig reads the config file, then lets flags override it.
func loadConfig(ctx *cli.Context) (*core.Config, error) {
	cfg := &core.Config{}

	filepath := ctx.String("config")
	if fs.IsExist(filepath) {
		logger.Info("loading config from %s", filepath)

		raw, err := fs.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file at %s: %v", filepath, err)
		}

		if cfg, err = parseConfig(raw); err != nil {
			return nil, fmt.Errorf("failed to load config file at %s: %v", filepath, err)
		}
	} else if ctx.IsSet("config") {
		return nil, fmt.Errorf("config file not found at %s", filepath)
	}

	if ctx.IsSet("server") {
		cfg.Servers = splitList(ctx.String("server"))
	}
	if ctx.IsSet("server-port") {
		cfg.ServerPorts = []int{ctx.Int("server-port")}
	}
	if ctx.IsSet("local-address") {
		cfg.LocalAddress = ctx.String("local-address")
	}
	if ctx.IsSet("local-port") {
		cfg.LocalPort = ctx.Int("local-port")
	}
	if ctx.IsSet("password") {
		cfg.Password = ctx.String("password")
	}
	if ctx.IsSet("method") {
		cfg.Method = ctx.String("method")
	}
	if ctx.IsSet("timeout") {
		seconds, err := strconv.ParseFloat(ctx.String("timeout"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %s: %v", ctx.String("timeout"), err)
		}
		cfg.Timeout = seconds2duration(seconds)
	}
	if ctx.Bool("verbose") {
		cfg.Verbose = true
	}

	if cfg.Verbose {
		logger.SetLevel("debug")
	}

	return cfg, nil
}

// parseConfig accepts the json config file. server and server_port may be
// a single value or a list; port_password maps ports to passwords.
func parseConfig(raw []byte) (*core.Config, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid json")
	}

	doc := gjson.ParseBytes(raw)
	cfg := &core.Config{
		LocalAddress: doc.Get("local_address").String(),
		LocalPort:    int(doc.Get("local_port").Int()),
		Password:     doc.Get("password").String(),
		Method:       doc.Get("method").String(),
		Verbose:      doc.Get("verbose").Bool(),
	}

	if timeout := doc.Get("timeout"); timeout.Exists() {
		cfg.Timeout = seconds2duration(timeout.Float())
	}

	for _, server := range listOf(doc.Get("server")) {
		if server.String() != "" {
			cfg.Servers = append(cfg.Servers, server.String())
		}
	}

	for _, port := range listOf(doc.Get("server_port")) {
		p, err := parsePort(port)
		if err != nil {
			return nil, fmt.Errorf("invalid server_port: %v", err)
		}
		cfg.ServerPorts = append(cfg.ServerPorts, p)
	}

	if pp := doc.Get("port_password"); pp.IsObject() {
		cfg.PortPassword = map[int]string{}

		var err error
		pp.ForEach(func(key, value gjson.Result) bool {
			var port int
			if port, err = strconv.Atoi(key.String()); err != nil {
				err = fmt.Errorf("invalid port_password port %s", key.String())
				return false
			}

			cfg.PortPassword[port] = value.String()
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func listOf(v gjson.Result) []gjson.Result {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}

	if v.IsArray() {
		return v.Array()
	}

	return []gjson.Result{v}
}

func parsePort(v gjson.Result) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(v.String()))
	if err != nil {
		return 0, err
	}

	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}

	return port, nil
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}

	return list
}

func seconds2duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
