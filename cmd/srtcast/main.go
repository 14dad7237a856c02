// Command srtcast runs the SRT relay: a broadcast sink that fans inbound
// stream data out to every connected peer, optionally fed by a client
// source pulling from an upstream SRT server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/srtcast/client"
	"github.com/cyberinferno/srtcast/config"
	"github.com/cyberinferno/srtcast/logger"
	"github.com/cyberinferno/srtcast/media"
	"github.com/cyberinferno/srtcast/server"
	"github.com/cyberinferno/srtcast/transport"
)

func main() {
	configPath := flag.String("config", "srtcast.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewConsole("srtcast", cfg.ZerologLevel())
	tr := transport.NewSRT(cfg.SRTOptions())

	sink := server.New(server.Config{
		URI:         cfg.Server.URI,
		PollTimeout: cfg.PollTimeout(),
		Transport:   tr,
		Logger:      log,
		OnClientAdded: func(id uint32, addr net.Addr) {
			log.Info("peer joined", logger.F("id", id), logger.F("addr", addr.String()))
		},
		OnClientRemoved: func(id uint32, addr net.Addr) {
			log.Info("peer left", logger.F("id", id), logger.F("addr", addr.String()))
		},
	})
	if err := sink.Start(); err != nil {
		log.Error("sink start failed", logger.F("err", err))
		os.Exit(1)
	}

	var src *client.Source
	pumpDone := make(chan struct{})
	if cfg.Client.URI != "" {
		src = client.New(client.Config{
			URI:       cfg.Client.URI,
			Transport: tr,
			Logger:    log,
		})
		if err := src.Start(); err != nil {
			log.Error("source start failed", logger.F("err", err))
			sink.Stop()
			os.Exit(1)
		}
		go pump(src, sink, cfg.Client.FillSize, log, pumpDone)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if src != nil {
		select {
		case sig := <-sigCh:
			log.Info("signal received", logger.F("signal", sig.String()))
		case <-pumpDone:
			log.Info("upstream ended, shutting down")
		}
		src.Stop()
	} else {
		sig := <-sigCh
		log.Info("signal received", logger.F("signal", sig.String()))
	}

	sink.Stop()
}

// pump moves buffers from the source to the sink until the stream ends or
// the connection fails.
func pump(src *client.Source, sink *server.Sink, fillSize int, log logger.Logger, done chan struct{}) {
	defer close(done)

	for {
		buf := media.Alloc(fillSize)
		if err := src.Fill(buf); err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("end of stream")
			} else {
				log.Error("fill failed", logger.F("err", err))
			}
			return
		}
		if err := sink.Submit(buf); err != nil {
			log.Error("submit failed", logger.F("err", err))
			return
		}
	}
}
