package command

import (
	"github.com/go-zoox/cli"
	"github.com/go-zoox/shadowsocks/core"
)

func RegisterServer(app *cli.MultipleProgram) {
	app.Register("server", &cli.Command{
		Name:  "server",
		Usage: "shadowsocks server",
		Flags: flags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			server, err := core.NewServer(cfg)
			if err != nil {
				return err
			}

			return server.Run(ctx.Context)
		},
	})
}
