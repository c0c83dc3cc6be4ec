package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sigmavirus24/gofaye"
	"github.com/sigmavirus24/gofaye/extensions/auth"
	"github.com/sigmavirus24/gofaye/extensions/replay"
)

type config struct {
	URI         string
	LogLevel    string
	AccessToken string
	TokenHost   string
	Ext         string
	Timeout     time.Duration
	Replay      bool
	MetricsAddr string
}

func main() {
	var cfg config
	flags := flag.NewFlagSet("fayecat", flag.ExitOnError)
	flags.StringVar(&cfg.URI, "url", "", "the Bayeux endpoint (http, https, ws or wss)")
	flags.StringVar(&cfg.LogLevel, "loglevel", "error", "the level to log at")
	flags.StringVar(&cfg.AccessToken, "token", "", "bearer token added to long-polling requests")
	flags.StringVar(&cfg.TokenHost, "token-host", "", "only send the token to hosts ending in this suffix")
	flags.StringVar(&cfg.Ext, "ext", "", "JSON object sent as ext with every message")
	flags.DurationVar(&cfg.Timeout, "timeout", gofaye.DefaultTimeout, "how long to wait for the connection to be established")
	flags.BoolVar(&cfg.Replay, "replay", false, "enable the replay extension")
	flags.StringVar(&cfg.MetricsAddr, "metrics", "", "serve prometheus metrics on this address")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Printf("error parsing flags: %q\n", err)
		os.Exit(1)
	}
	channelNames := flags.Args()
	if cfg.URI == "" || len(channelNames) == 0 {
		fmt.Println("usage: fayecat -url URL [flags] CHANNEL...")
		os.Exit(1)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.ErrorLevel
	}
	logger.SetLevel(level)

	opts := []gofaye.Option{
		gofaye.WithLogger(logger),
		gofaye.WithTimeout(cfg.Timeout),
	}
	if cfg.AccessToken != "" {
		opts = append(opts, gofaye.WithHTTPTransport(&auth.TokenAuthenticator{
			Token:      cfg.AccessToken,
			HostSuffix: cfg.TokenHost,
		}))
	}
	if cfg.Ext != "" {
		opts = append(opts, gofaye.WithMessageExt(json.RawMessage(cfg.Ext)))
	}
	if cfg.Replay {
		opts = append(opts, gofaye.WithExtension(replay.New(nil)))
	}
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		opts = append(opts, gofaye.WithMetrics(registry))
		go serveMetrics(logger, cfg.MetricsAddr, registry)
	}

	session, err := gofaye.NewSession(cfg.URI, opts...)
	if err != nil {
		fmt.Printf("error initializing session: %q\n", err)
		os.Exit(1)
	}
	logger.Debug("got session")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fatal := make(chan error, 1)

	session.OnHandshakeResponse(func(m gofaye.Message) {
		if !m.Successful {
			return
		}
		for _, name := range channelNames {
			if err := session.Subscribe(name); err != nil {
				logger.WithError(err).WithField("channel", name).Error("unable to subscribe")
			}
		}
	})
	session.OnSubscribeResponse(func(m gofaye.Message) {
		if !m.Successful {
			logger.WithField("channel", m.Subscription).WithField("error", m.Error).Error("subscription rejected")
		}
	})
	session.OnMessageReceived(func(m gofaye.Message) {
		if m.Channel.Type() == gofaye.MetaChannel || !m.HasData() {
			return
		}
		logger.WithFields(logrus.Fields{
			"channel": m.Channel,
			"data":    string(m.Data),
		}).Info()
		fmt.Printf("%s\t%s\n", m.Channel, m.Data)
	})
	session.OnConnectTimeout(func() {
		logger.Warn("connection not established in time")
	})
	session.OnError(func(e gofaye.ErrorEvent) {
		logger.WithFields(logrus.Fields(e.Data)).WithField("level", e.Level.String()).Warn("session error")
		if e.Level == gofaye.Fatal {
			select {
			case fatal <- fmt.Errorf("%v", e.Data["error"]):
			default:
			}
		}
	})
	session.OnDisconnected(func() {
		logger.Info("disconnected")
	})

	if err := session.Connect(""); err != nil {
		fmt.Printf("error connecting: %q\n", err)
		os.Exit(2)
	}

	select {
	case <-ctx.Done():
		if err := session.Disconnect(); err != nil {
			logger.WithError(err).Debug("disconnect")
		}
		session.Dispose()
	case err := <-fatal:
		session.Dispose()
		fmt.Printf("error in bayeux session: %q\n", err)
		os.Exit(2)
	}
}

func serveMetrics(logger logrus.FieldLogger, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		logger.WithError(err).Error("metrics server stopped")
	}
}
