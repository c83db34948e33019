package command

import (
	"github.com/go-zoox/cli"
	"github.com/go-zoox/shadowsocks/core"
)

func RegisterLocal(app *cli.MultipleProgram) {
	app.Register("local", &cli.Command{
		Name:  "local",
		Usage: "socks5 proxy that relays through a shadowsocks server",
		Flags: flags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			local, err := core.NewLocal(cfg)
			if err != nil {
				return err
			}

			return local.Run(ctx.Context)
		},
	})
}
