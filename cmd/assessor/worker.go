package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/assessor/internal/transport/sqsworker"
	"github.com/urfave/cli/v3"
)

func sqsWorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "sqs-worker",
		Usage: "grade Execute requests from an SQS queue",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "queue-url", Usage: "request queue; overrides sqs.request_queue_url"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if url := cmd.String("queue-url"); url != "" {
				a.cfg.SQS.RequestQueueURL = url
			}
			if a.cfg.SQS.RequestQueueURL == "" {
				return errNoQueue
			}

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			awsCfg, err := a.awsConfig(ctx)
			if err != nil {
				return err
			}
			w := sqsworker.New(sqs.NewFromConfig(awsCfg), a.cfg.SQS.RequestQueueURL, svc, a.cfg.SQS.Batch, a.logger)
			return w.Run(ctx)
		},
	}
}
