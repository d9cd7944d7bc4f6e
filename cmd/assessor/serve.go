package main

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/assessor/internal/transport/httpapi"
	"github.com/programme-lv/assessor/internal/transport/natsapi"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the HTTP and NATS APIs and expire overdue attempts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address; overrides http.addr"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr := cmd.String("addr"); addr != "" {
				a.cfg.HTTP.Addr = addr
			}

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}

			if url := a.cfg.NATS.URL; url != "" {
				nc, err := nats.Connect(url, nats.Name("assessor"))
				if err != nil {
					return err
				}
				defer nc.Drain()
				if _, err := natsapi.NewServer(nc, svc, a.cfg.NATS.Prefix, a.logger).Subscribe(ctx); err != nil {
					return err
				}
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				svc.RunSweeper(ctx, a.cfg.Session.SweepInterval.Duration)
				return nil
			})
			g.Go(func() error {
				router := httpapi.NewRouter(httpapi.NewHandler(svc, a.logger))
				return httpapi.Serve(ctx, a.cfg.HTTP.Addr, router, a.logger)
			})
			return g.Wait()
		},
	}
}
