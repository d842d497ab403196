// Package tiler splits a source raster into a deterministic grid of
// fixed-size tiles.
//
// Tiles are generated in row-major order with windowed reads, so the full
// source raster is never materialized. Boundary windows smaller than the
// configured size are skipped rather than padded: every emitted tile has
// identical pixel dimensions, which keeps downstream batch inference free
// of shape special cases. Each tile is written to disk before the grid
// advances, so an interrupted run leaves a clean prefix of valid tiles.
package tiler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/skylens-io/skylens/internal/raster"
)

// DefaultTileSize is the tile edge length in pixels used when none is
// configured.
const DefaultTileSize = 256

// Config holds the explicit inputs of one tiling invocation.
type Config struct {
	// TileSize is the edge length of the square tiles, in pixels.
	TileSize int

	// OnTile, when non-nil, is invoked after each tile file is written.
	OnTile func(row, col int, path string)
}

// Result summarizes one tiling invocation.
type Result struct {
	// TileCount is the number of tiles written.
	TileCount int

	// Rows and Cols are the dimensions of the emitted tile grid.
	Rows int
	Cols int

	// Paths lists the written tile files in row-major order.
	Paths []string
}

// TileName returns the canonical file name for the tile at the given grid
// position. Zero-padded indices keep lexicographic directory order equal to
// row-major grid order.
func TileName(row, col int) string {
	return fmt.Sprintf("tile_%05d_%05d%s", row, col, raster.Ext)
}

// Generate splits the raster at inputPath into TileSize-square tiles under
// outDir. The source is validated before any tile is written: a raster with
// missing CRS or transform metadata fails the whole invocation with no
// partial output. Returns the emitted grid summary.
func Generate(inputPath, outDir string, cfg Config) (*Result, error) {
	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("tile size must be a positive number of pixels, got %d", cfg.TileSize)
	}

	src, err := raster.Open(inputPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	meta := src.Meta()
	if err := meta.ValidateMeta(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", inputPath, err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	res := &Result{
		Rows: meta.Height / cfg.TileSize,
		Cols: meta.Width / cfg.TileSize,
	}

	for row := 0; row < res.Rows; row++ {
		for col := 0; col < res.Cols; col++ {
			tile, err := src.ReadWindow(row*cfg.TileSize, col*cfg.TileSize, cfg.TileSize, cfg.TileSize)
			if err != nil {
				return nil, fmt.Errorf("reading window (%d,%d): %w", row, col, err)
			}

			path := filepath.Join(outDir, TileName(row, col))
			if err := raster.WriteFile(tile, path); err != nil {
				return nil, fmt.Errorf("writing tile (%d,%d): %w", row, col, err)
			}

			res.TileCount++
			res.Paths = append(res.Paths, path)
			if cfg.OnTile != nil {
				cfg.OnTile(row, col, path)
			}
		}
	}

	logf("generated %d tiles (%dx%d grid) from %s", res.TileCount, res.Rows, res.Cols, inputPath)
	return res, nil
}
