package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maauso/pixelframe-api/internal/grid"
	"github.com/maauso/pixelframe-api/internal/session"
)

// Size is a width/height pair in the dump document.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Dump is the structured pixel dump document. Colors holds the flat R,G,B,A
// channel array in buffer order; Grid.Width and Grid.Height are the column
// and row counts.
type Dump struct {
	Source     Size  `json:"source"`
	Grid       Size  `json:"grid"`
	CellSize   int   `json:"cellSize"`
	BorderSize int   `json:"borderSize"`
	Colors     []int `json:"colors"`
}

// NewDump builds the dump document for frame.
func NewDump(f session.Frame) Dump {
	return Dump{
		Source:     Size{Width: f.SourceWidth, Height: f.SourceHeight},
		Grid:       Size{Width: f.Buffer.Columns, Height: f.Buffer.Rows},
		CellSize:   f.Layout.CellSize,
		BorderSize: f.Layout.BorderSize,
		Colors:     f.Buffer.Channels(),
	}
}

// Buffer reshapes the dump colors back into a pixel buffer.
func (d Dump) Buffer() (*grid.Buffer, error) {
	return grid.BufferFromChannels(d.Grid.Width, d.Grid.Height, d.Colors)
}

// EncodeDump serializes frame as a JSON dump.
func EncodeDump(_ context.Context, f session.Frame) ([]byte, error) {
	data, err := json.Marshal(NewDump(f))
	if err != nil {
		return nil, fmt.Errorf("marshal dump: %w", err)
	}
	return data, nil
}
