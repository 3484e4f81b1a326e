package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/astromechza/sketchboard/pkg/archive"
	"github.com/astromechza/sketchboard/pkg/board"
	"github.com/astromechza/sketchboard/pkg/discovery"
	"github.com/astromechza/sketchboard/pkg/hub"
)

const boardID = "default"

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "localhost:8080", "the address to listen on")
	levelVar := flag.String("log-level", "info", "debug, info, warn or error")
	sendBufferVar := flag.Int("send-buffer", hub.DefaultSendBuffer, "messages queued per connection before new ones are dropped")
	archiveVar := flag.String("archive", "", "sqlite file to archive the board into, empty to disable")
	archiveIntervalVar := flag.Duration("archive-interval", 5*time.Second, "how often to archive the board")
	mdnsVar := flag.Bool("mdns", false, "advertise the server on the local network")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*levelVar)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	h := hub.New(board.New(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := new(sync.WaitGroup)

	if *archiveVar != "" {
		slog.Info("Opening archive", "path", *archiveVar)
		a, err := archive.Open(*archiveVar)
		if err != nil {
			return err
		}
		defer a.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Run(ctx, boardID, *archiveIntervalVar, func() []byte {
				return h.Snapshot()
			})
		}()
	}

	listener, err := net.Listen("tcp", *addrVar)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	slog.Info("listening", "addr", listener.Addr().String())

	if *mdnsVar {
		_, portRaw, _ := net.SplitHostPort(listener.Addr().String())
		port, _ := strconv.Atoi(portRaw)
		advert, err := discovery.Advertise(port)
		if err != nil {
			_ = listener.Close()
			return err
		}
		defer func() {
			_ = advert.Shutdown()
		}()
		slog.Info("advertising", "service", discovery.ServiceType, "port", port)
	}

	httpServer := &http.Server{Handler: newRouter(h, *sendBufferVar)}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()
	_ = httpServer.Close()

	wg.Wait()

	st := h.Stats()
	slog.Info("stopped", "strokes", st.Strokes, "dropped_messages", st.DroppedMessages)
	return nil
}
