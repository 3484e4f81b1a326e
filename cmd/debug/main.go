package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/astromechza/sketchboard/pkg/archive"
	"github.com/astromechza/sketchboard/pkg/board"
	"github.com/astromechza/sketchboard/pkg/export"
	"github.com/astromechza/sketchboard/pkg/protocol"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	archiveVar := flag.Bool("archive", false, "treat the input as a sqlite archive rather than a board dump")
	boardVar := flag.String("board", "default", "the board to read from an archive")
	pdfVar := flag.String("pdf", "", "write the board to this pdf file")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the file to read")
	}

	var raw []byte
	if *archiveVar {
		a, err := archive.Open(flag.Arg(0))
		if err != nil {
			return err
		}
		defer a.Close()
		content, savedAt, err := a.Latest(context.Background(), *boardVar)
		if err != nil {
			return err
		}
		slog.Info("loaded archive", "board", *boardVar, "saved_at", savedAt)
		raw = content
	} else {
		content, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		raw = content
	}

	var strokes []protocol.Stroke
	if err := json.Unmarshal(raw, &strokes); err != nil {
		return fmt.Errorf("failed to decode board: %w", err)
	}
	slog.Info("loaded board", "strokes", len(strokes))

	owners := make(map[string]int)
	for i, st := range strokes {
		owners[st.OwnerID]++
		if err := board.Validate(protocol.Draft{Tool: st.Tool, Color: st.Color, Width: st.Width, Points: st.Points}); err != nil {
			slog.Warn("invalid stroke", "i", i, "id", st.ID, "err", err)
		}
		slog.Info("stroke", "i", fmt.Sprintf("%4d", i), "id", st.ID, "owner", st.OwnerID, "tool", st.Tool, "color", st.Color, "width", st.Width, "points", len(st.Points))
	}
	for owner, n := range owners {
		slog.Info("owner", "id", owner, "strokes", n)
	}

	if *pdfVar != "" {
		f, err := os.Create(*pdfVar)
		if err != nil {
			return fmt.Errorf("failed to create pdf: %w", err)
		}
		defer f.Close()
		if err := export.PDF(f, strokes); err != nil {
			return err
		}
		slog.Info("rendered", "path", "file://"+*pdfVar)
	}
	return nil
}
