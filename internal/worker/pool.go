// Package worker fans a corpus of capture files out across a pool of
// goroutines, each pulling the next unclaimed file from a shared index,
// decoding it through pkg/zigbee, and staging the result in memory. Nothing
// here writes to the Store — that happens only once, at FinalizeCorpus, so a
// capture file is never partially visible in the packets table.
package worker

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zigator-go/zigator/internal/capture"
	"github.com/zigator-go/zigator/internal/storage"
	"github.com/zigator-go/zigator/pkg/zigbee"
)

// StagedFile is one capture file's decoded packets, held in memory until
// FinalizeCorpus flushes them to the Store.
type StagedFile struct {
	Path         string
	Records      []storage.PacketRecord
	ErrorCount   int
	WarningCount int
}

// ParseCaptureFile decodes every packet of one capture file into a
// StagedFile. It never touches the Store: a capture file is a private
// write-staging buffer until FinalizeCorpus commits it, matching "no packet
// is emitted partially" without an open transaction held for the file's
// entire, potentially long, decode pass.
func ParseCaptureFile(sec *zigbee.SecurityStage, path string) (StagedFile, error) {
	reader, err := capture.Open(path)
	if err != nil {
		return StagedFile{}, err
	}
	defer reader.Close()

	filename := filepath.Base(path)
	cols := zigbee.ColumnOrder()
	staged := StagedFile{Path: path}

	for {
		pkt, err := reader.Next()
		if err != nil {
			break
		}

		var frame *zigbee.Frame
		if pkt.LinkLayerOK {
			frame = decodeRecovering(pkt.Payload, sec)
		} else {
			frame = zigbee.NewFrame()
			frame.SetError(zigbee.ErrNoMACFields)
		}

		values := make(map[string]string, len(frame.Values())+1)
		for _, col := range cols {
			if v, ok := frame.Get(col); ok {
				values[col] = v
			}
		}
		values["pcap_filename"] = filename

		staged.Records = append(staged.Records, storage.PacketRecord{
			PktTime:    pkt.Time,
			PktBytes:   hex.EncodeToString(pkt.Payload),
			PhyLength:  len(pkt.Payload),
			MACFCSOK:   frame.ErrorMsg != zigbee.ErrFCSMismatch,
			ErrorMsg:   frame.ErrorMsg,
			WarningMsg: frame.WarningMsg,
			Values:     values,
		})

		if frame.ErrorMsg != "" {
			staged.ErrorCount++
		}
		if frame.WarningMsg != "" {
			staged.WarningCount++
		}
	}

	return staged, nil
}

// buildRecord is the decode step decodeRecovering guards. A package variable
// rather than a direct zigbee.BuildRecord call so tests can substitute a
// stub that panics, without reaching into pkg/zigbee to contrive one.
var buildRecord = zigbee.BuildRecord

// decodeRecovering runs buildRecord for one packet, converting a panic in
// any sub-decoder into a PE999 record instead of letting it unwind through
// the errgroup goroutine and take the rest of the worker pool down with it.
func decodeRecovering(payload []byte, sec *zigbee.SecurityStage) (frame *zigbee.Frame) {
	defer func() {
		if r := recover(); r != nil {
			frame = zigbee.NewFrame()
			frame.SetError(zigbee.ErrInternalFault)
		}
	}()
	return buildRecord(payload, sec)
}

// ParseCorpus decodes every capture file in paths across numWorkers
// goroutines that pull file indices off a single shared atomic counter —
// the same pull-scheduling shape the original analyzer's multiprocessing
// worker pool used for its per-packet-type fan-out, generalized here to
// per-file fan-out. Results are returned in the same order as paths
// regardless of completion order, and logged as they finish.
func ParseCorpus(ctx context.Context, sec *zigbee.SecurityStage, paths []string, numWorkers int, log zerolog.Logger) ([]StagedFile, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	staged := make([]StagedFile, len(paths))
	var taskIndex uint64
	var completed uint64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < numWorkers; w++ {
		g.Go(func() error {
			for {
				i := atomic.AddUint64(&taskIndex, 1) - 1
				if i >= uint64(len(paths)) {
					return nil
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				sf, err := ParseCaptureFile(sec, paths[i])
				if err != nil {
					return fmt.Errorf("worker: parse %s: %w", paths[i], err)
				}
				staged[i] = sf

				done := atomic.AddUint64(&completed, 1)
				log.Info().Str("file", filepath.Base(paths[i])).Int("packets", len(sf.Records)).
					Int("errors", sf.ErrorCount).Int("warnings", sf.WarningCount).
					Msgf("parsed %d of %d files", done, len(paths))
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return staged, nil
}
