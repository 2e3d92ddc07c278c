// Command glimesh-chat joins a Glimesh channel's chat, prints incoming
// messages and sends lines typed on stdin. Lines starting with a slash are
// moderation commands (see /help).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	glimesh "github.com/glimesh/glimesh-go-sdk"
	"github.com/glimesh/glimesh-go-sdk/relay"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("error loading .env file", "error", err)
	}

	cmd := &cli.Command{
		Name:      "glimesh-chat",
		Usage:     "read and write a Glimesh channel's chat from the terminal",
		ArgsUsage: "<channel>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Usage: "OAuth bearer token (read-write)", Sources: cli.EnvVars("GLIMESH_TOKEN")},
			&cli.StringFlag{Name: "client-id", Usage: "public client id (read-only)", Sources: cli.EnvVars("GLIMESH_CLIENT_ID")},
			&cli.StringFlag{Name: "host", Value: glimesh.DefaultHost, Usage: "API host", Sources: cli.EnvVars("GLIMESH_HOST")},
			&cli.BoolFlag{Name: "compress", Usage: "offer permessage-deflate"},
			&cli.StringFlag{Name: "redis", Usage: "also publish messages to this Redis address"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	channel := cmd.Args().First()
	if channel == "" {
		return cli.Exit("channel name is required", 2)
	}

	level := slog.LevelInfo
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := glimesh.ConfigFromEnv()
	cfg.Host = cmd.String("host")
	cfg.Token = cmd.String("token")
	cfg.ClientID = cmd.String("client-id")
	cfg.Compression = cfg.Compression || cmd.Bool("compress")
	cfg.Logger = logger

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := glimesh.New(cfg)
	meta, err := client.Connect(ctx, channel)
	if err != nil {
		return err
	}
	if !meta.Connected {
		return cli.Exit("no credentials: set --token or --client-id", 2)
	}
	defer client.Close()

	if err := client.WaitReady(ctx); err != nil {
		return err
	}
	logger.Info("chat joined", "channel", channel, "channel_id", client.ChannelID(), "read_only", meta.ReadOnly)

	var relayed chan glimesh.ChatMessage
	if addr := cmd.String("redis"); addr != "" {
		rcfg := relay.ConfigFromEnv()
		rcfg.Addr = addr
		sink := relay.NewRedisSink(rcfg, logger)
		defer sink.Close()
		if err := sink.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		relayed = make(chan glimesh.ChatMessage, 64)
		defer close(relayed)
		go sink.Run(ctx, channel, relayed)
	}

	go readInput(ctx, os.Stdin, os.Stdout, client, stop)

	messages := client.Messages()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			fmt.Printf("[%s #%d] %s\n", msg.User.Username, msg.User.ID, msg.Message)
			if relayed != nil {
				select {
				case relayed <- msg:
				default:
					logger.Warn("relay buffer full, dropping message")
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}
