package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/sketchboard/pkg/discovery"
	"github.com/astromechza/sketchboard/pkg/protocol"
	"github.com/astromechza/sketchboard/pkg/replica"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "127.0.0.1:8080", "the address to connect to")
	discoverVar := flag.Bool("discover", false, "find the server on the local network instead of using -addr")
	doodleVar := flag.Bool("doodle", false, "draw random strokes and undo or redo some of them")
	nameVar := flag.String("name", fmt.Sprintf("%d", os.Getpid()), "name used for the board dump file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := *addrVar
	if *discoverVar {
		found, err := discovery.First(ctx, 3*time.Second)
		if err != nil {
			return err
		}
		slog.Info("discovered server", "addr", found)
		addr = found
	}
	u := &url.URL{Scheme: "ws", Host: addr, Path: "/board/sync"}

	c := &client{url: u.String(), replica: replica.New()}
	c.replica.OnChange(func(t protocol.EventType) {
		if t == protocol.EventStrokeSnapshot {
			slog.Debug("board changed", "strokes", len(c.replica.Strokes()))
		}
	})

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.connectAndSyncContinuously(ctx)
	}()

	if *doodleVar {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.doodleContinuously(ctx)
		}()
	}

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()

	wg.Wait()

	raw, err := json.MarshalIndent(c.replica.Strokes(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}
	tf := filepath.Join(os.TempDir(), "sketchboard-"+*nameVar+".json")
	if err := os.WriteFile(tf, raw, 0o644); err != nil {
		return fmt.Errorf("failed to dump: %w", err)
	}
	slog.Info("dumped", "dump", tf)
	return nil
}

type client struct {
	url     string
	replica *replica.Replica

	mu      sync.Mutex
	current *replica.Client
}

func (c *client) connectAndSyncContinuously(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		if err := c.connectAndSync(ctx); err != nil {
			slog.Error("failed to sync", "err", err)
		} else if ctx.Err() == nil {
			slog.Info("server closed the connection")
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			slog.Info("stopping sync")
			return
		}
	}
}

func (c *client) connectAndSync(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	cl := replica.NewClient(conn, c.replica, slog.Default())
	c.mu.Lock()
	c.current = cl
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
	}()
	slog.Info("connected", "url", c.url)
	return cl.Sync(ctx)
}

func (c *client) doodleContinuously(ctx context.Context) {
	for {
		t := time.NewTimer(time.Second + time.Second*time.Duration(rand.Intn(5)))
		select {
		case <-t.C:
			c.mu.Lock()
			cl := c.current
			c.mu.Unlock()
			if cl == nil {
				continue
			}
			if err := c.doodle(cl); err != nil {
				slog.Error("failed to doodle", "err", err)
			}
		case <-ctx.Done():
			t.Stop()
			slog.Info("stopping doodle")
			return
		}
	}
}

func (c *client) doodle(cl *replica.Client) error {
	switch n := rand.Intn(10); {
	case n == 0:
		slog.Info("undo")
		return cl.Undo()
	case n == 1:
		slog.Info("redo")
		return cl.Redo()
	}

	tool := protocol.ToolBrush
	if rand.Intn(5) == 0 {
		tool = protocol.ToolEraser
	}
	at := protocol.Point{X: rand.Float64() * 800, Y: rand.Float64() * 600}
	if err := cl.BeginStroke(tool, c.replica.Identity().Color, 1+rand.Intn(protocol.MaxWidth), at); err != nil {
		return err
	}
	for i := 0; i < 5+rand.Intn(10); i++ {
		at = protocol.Point{X: at.X + rand.Float64()*40 - 20, Y: at.Y + rand.Float64()*40 - 20}
		if err := cl.MoveCursor(at.X, at.Y); err != nil {
			return err
		}
		if err := cl.ExtendStroke(at); err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := cl.FinishStroke(); err != nil {
		return err
	}
	slog.Info("drew", "tool", tool, "strokes", len(c.replica.Strokes()))
	return nil
}
