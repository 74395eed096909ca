package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/gfxlab/internal/core"
)

type ExportData struct {
	RunMetadata
	Windows int               `json:"windows"`
	Frames  []core.FrameStats `json:"frames"`
}

func newExport(meta RunMetadata, stats []core.FrameStats) ExportData {
	return ExportData{RunMetadata: meta, Windows: len(stats), Frames: stats}
}

// Export writes a stored run as a single JSON document.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	stats, err := s.LoadFrames(runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newExport(*meta, stats))
}

func (s *Store) ExportFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.Export(file, runID)
}
