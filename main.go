package main

import (
	"github.com/go-zoox/cli"
	"github.com/go-zoox/shadowsocks/command"
)

func main() {
	app := cli.NewMultipleProgram(&cli.MultipleProgramConfig{
		Name:    "shadowsocks",
		Usage:   "shadowsocks is a secure socks5 proxy, with a local and a server side.",
		Version: Version,
	})

	command.RegisterLocal(app)
	command.RegisterServer(app)

	app.Run()
}
