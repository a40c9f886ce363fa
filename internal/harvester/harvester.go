// Package harvester drives the scan_geo round-trip that turns a logged-in
// game session into a finished L2D region file: one admin command per
// block-row, 256 rows per region, assembled into an in-memory Region and
// flushed to disk atomically.
package harvester

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/client"
	"github.com/la2geo/geoharvest/internal/config"
	"github.com/la2geo/geoharvest/internal/coordinator"
	"github.com/la2geo/geoharvest/internal/geodata"
)

const (
	scanRowTimeout    = 10 * time.Second
	progressEveryRows = 16
	expectedRowBytes  = geodata.RegionBlocksX * 3
)

// Harvester owns one persistent game session per active worker name and
// turns coordinator.RegionState claims into finished L2D files.
type Harvester struct {
	cfg      config.Scanner
	registry *coordinator.Registry

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	game *client.GameClient
}

// New builds a Harvester bound to cfg's login host/account and registry's
// event/progress plumbing.
func New(cfg config.Scanner, registry *coordinator.Registry) *Harvester {
	return &Harvester{
		cfg:      cfg,
		registry: registry,
		sessions: make(map[string]*session),
	}
}

// WorkFunc adapts Harvester to coordinator.Manager's expected signature.
func (h *Harvester) WorkFunc() coordinator.WorkFunc {
	return h.scanRegion
}

func (h *Harvester) scanRegion(ctx context.Context, worker string, region coordinator.RegionState) error {
	sess, err := h.ensureSession(ctx, worker)
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "harvester.scan_region", err).WithContext("worker", worker)
	}

	if err := h.runScan(ctx, sess, worker, region); err != nil {
		h.dropSession(worker)
		select {
		case <-time.After(time.Duration(h.cfg.ReconnectBackoffSeconds) * time.Second):
		case <-ctx.Done():
		}
		return err
	}
	return nil
}

func (h *Harvester) ensureSession(ctx context.Context, worker string) (*session, error) {
	h.mu.Lock()
	sess, ok := h.sessions[worker]
	h.mu.Unlock()
	if ok {
		return sess, nil
	}

	sess, err := h.connect(ctx, worker)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.sessions[worker] = sess
	h.mu.Unlock()
	return sess, nil
}

func (h *Harvester) dropSession(worker string) {
	h.mu.Lock()
	sess, ok := h.sessions[worker]
	delete(h.sessions, worker)
	h.mu.Unlock()
	if ok {
		sess.game.Close()
	}
}

// connect runs the full login-server -> game-server handshake for worker,
// creating a character if the account has none yet.
func (h *Harvester) connect(ctx context.Context, worker string) (*session, error) {
	lc, err := client.Connect(ctx, h.cfg.LoginHost, h.cfg.LoginPort)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "harvester.connect.login", err)
	}
	defer lc.Close()

	if err := lc.GGAuth(); err != nil {
		return nil, err
	}
	if err := lc.AuthLogin(worker, h.cfg.AccountPass); err != nil {
		return nil, err
	}
	if err := lc.RequestServerList(); err != nil {
		return nil, err
	}
	if len(lc.Servers) == 0 {
		return nil, apperrors.New(apperrors.KindProtocol, "harvester.connect", "no game servers offered")
	}

	target := lc.Servers[0]
	for _, s := range lc.Servers {
		if s.Up() {
			target = s
			break
		}
	}
	if err := lc.SelectServer(target.ID); err != nil {
		return nil, err
	}

	gc, err := client.ConnectGame(ctx, target.IP, target.Port)
	if err != nil {
		return nil, err
	}

	count, err := gc.AuthToGame(worker, lc.LoginKey1, lc.LoginKey2, lc.PlayKey1, lc.PlayKey2)
	if err != nil {
		gc.Close()
		return nil, err
	}
	if count == 0 {
		if err := gc.CreateCharacter(worker, 0x00, 0, 0, 0, 0); err != nil {
			gc.Close()
			return nil, err
		}
	}
	if err := gc.SelectAndEnter(0); err != nil {
		gc.Close()
		return nil, err
	}
	gc.StartDispatchLoop()

	slog.Info("harvester worker entered world", "worker", worker, "character", gc.Name())
	return &session{game: gc}, nil
}

// runScan drives the 256-row scan_geo round-trip for one region.
func (h *Harvester) runScan(ctx context.Context, sess *session, worker string, region coordinator.RegionState) error {
	rx, ry := region.RegionX, region.RegionY
	sess.game.DrainGeodataQueue()

	heights := make(map[[2]int]int16, geodata.RegionBlocks)
	nswe := make(map[[2]int]byte, geodata.RegionBlocks)
	start := time.Now()

	for blockY := range geodata.RegionBlocksY {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.KindTimeout, "harvester.scan", ctx.Err())
		}

		cmd := fmt.Sprintf("scan_geo %d %d %d", rx, ry, blockY)
		if err := sess.game.SendAdminCommand(cmd); err != nil {
			return apperrors.Wrap(apperrors.KindIO, "harvester.scan.send", err).
				WithContext("region", region.Key(), "block_y", blockY)
		}

		msg, err := sess.game.RecvGeodata(scanRowTimeout)
		if err != nil {
			return apperrors.Wrap(apperrors.KindTimeout, "harvester.scan.recv", err).
				WithContext("region", region.Key(), "block_y", blockY)
		}

		row, err := parseScanRow(msg, rx, ry, blockY)
		if err != nil {
			return err
		}

		for bx := range geodata.RegionBlocksX {
			key := [2]int{bx, blockY}
			heights[key] = row[bx].height
			nswe[key] = row[bx].nswe
		}

		scanned := (blockY + 1) * geodata.RegionBlocksX
		if err := h.registry.RecordScanned(ctx, region.Key(), geodata.RegionBlocksX); err != nil {
			slog.Warn("failed to record scanned cells", "region", region.Key(), "error", err)
		}
		if blockY%progressEveryRows == 0 {
			elapsed := time.Since(start).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(scanned) / elapsed
			}
			slog.Info("scan progress", "worker", worker, "region", region.Key(),
				"scanned", scanned, "total", geodata.RegionBlocks, "rate", rate)
		}
	}

	out := buildRegion(rx, ry, heights)
	if err := writeRegionAtomic(h.cfg.GeodataDir, out); err != nil {
		return err
	}

	if err := h.registry.RecordCellsBatch(ctx, region.Key(), toCellBatch(heights, nswe)); err != nil {
		slog.Warn("failed to persist scanned cell batch", "region", region.Key(), "error", err)
	}

	slog.Info("region scan complete", "worker", worker, "region", region.Key(),
		"elapsed", time.Since(start).Round(time.Second).String())
	return nil
}

type scanCell struct {
	height int16
	nswe   byte
}

// parseScanRow validates and decodes one "GEODATA|rx|ry|by|<base64>" message.
func parseScanRow(msg string, rx, ry, blockY int) ([geodata.RegionBlocksX]scanCell, error) {
	var row [geodata.RegionBlocksX]scanCell

	parts := strings.Split(msg, "|")
	if len(parts) != 5 || parts[0] != "GEODATA" {
		return row, apperrors.New(apperrors.KindFormat, "harvester.parse_scan_row", "malformed scan response").
			WithContext("message", truncate(msg, 100))
	}
	gotRX, err1 := strconv.Atoi(parts[1])
	gotRY, err2 := strconv.Atoi(parts[2])
	gotBY, err3 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil || err3 != nil || gotRX != rx || gotRY != ry || gotBY != blockY {
		return row, apperrors.New(apperrors.KindFormat, "harvester.parse_scan_row", "scan response does not match request").
			WithContext("want", fmt.Sprintf("%d_%d_%d", rx, ry, blockY), "got", fmt.Sprintf("%d_%d_%d", gotRX, gotRY, gotBY))
	}

	raw, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return row, apperrors.Wrap(apperrors.KindFormat, "harvester.parse_scan_row.base64", err)
	}
	if len(raw) != expectedRowBytes {
		return row, apperrors.New(apperrors.KindFormat, "harvester.parse_scan_row", "unexpected payload size").
			WithContext("got", len(raw), "want", expectedRowBytes)
	}

	for bx := range geodata.RegionBlocksX {
		off := bx * 3
		row[bx] = scanCell{
			height: int16(binary.LittleEndian.Uint16(raw[off:])),
			nswe:   raw[off+2],
		}
	}
	return row, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// toCellBatch flattens the scanned block-row maps into coordinator.Cell rows
// for durable persistence (block-resolution samples, not per-geodata-cell).
func toCellBatch(heights map[[2]int]int16, nswe map[[2]int]byte) []coordinator.Cell {
	batch := make([]coordinator.Cell, 0, len(heights))
	for key, h := range heights {
		batch = append(batch, coordinator.Cell{
			X:      key[0],
			Y:      key[1],
			Height: int(h),
			NSWE:   int(nswe[key]),
		})
	}
	return batch
}

// buildRegion materializes a Region of Flat blocks, one per scanned block,
// in bx*RegionBlocksY+by order. Scanned NSWE is not representable on a Flat
// block (fully walkable by construction) so it is recorded separately via
// toCellBatch rather than here.
func buildRegion(rx, ry int, heights map[[2]int]int16) *geodata.Region {
	blocks := make([]geodata.Block, geodata.RegionBlocks)
	for bx := range geodata.RegionBlocksX {
		for by := range geodata.RegionBlocksY {
			blocks[bx*geodata.RegionBlocksY+by] = &geodata.FlatBlock{Height: heights[[2]int{bx, by}]}
		}
	}
	return &geodata.Region{RegionX: rx, RegionY: ry, Blocks: blocks}
}

// writeRegionAtomic writes region's L2D bytes to dir via a temp file followed
// by an atomic rename, so a concurrent reader never observes a partial file.
func writeRegionAtomic(dir string, region *geodata.Region) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "harvester.write_region", err)
	}

	name := fmt.Sprintf("%d_%d.l2d", region.RegionX, region.RegionY)
	finalPath := filepath.Join(dir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, region.Write(), 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "harvester.write_region.write_temp", err).
			WithContext("path", tmpPath)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "harvester.write_region.rename", err).
			WithContext("from", tmpPath, "to", finalPath)
	}
	return nil
}
