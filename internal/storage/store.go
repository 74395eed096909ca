// Package storage records telemetry runs on disk for the external dashboard:
// one directory per run holding metadata.json and frames.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/quality"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Experiment string             `json:"experiment"`
	Kind       string             `json:"kind"`
	Profile    string             `json:"profile"`
	Adapter    string             `json:"adapter"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Duration   float64            `json:"duration"`
	Frames     uint64             `json:"frames"`
	Settings   quality.Settings   `json:"settings"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Run is everything recorded for one headless or live session.
type Run struct {
	RunMetadata
	Stats []core.FrameStats
}

var csvHeader = []string{"timestamp", "fps", "frame_time_ms", "memory_mb"}

func (s *Store) Save(run Run) (string, error) {
	meta := run.RunMetadata
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.ID = fmt.Sprintf("%s_%d_%s", meta.Experiment, meta.Timestamp.Unix(), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "frames.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, st := range run.Stats {
		row := []string{
			st.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.Itoa(st.FPS),
			strconv.FormatFloat(st.FrameTimeMs, 'f', 6, 64),
			strconv.FormatFloat(st.MemoryMB, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadFrames reads the per-window stats back. Malformed rows are skipped.
func (s *Store) LoadFrames(runID string) ([]core.FrameStats, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "frames.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	stats := make([]core.FrameStats, 0, max(len(records)-1, 0))
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(csvHeader) {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			continue
		}
		fps, err := strconv.Atoi(rec[1])
		if err != nil {
			continue
		}
		ft, err1 := strconv.ParseFloat(rec[2], 64)
		mem, err2 := strconv.ParseFloat(rec[3], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		stats = append(stats, core.FrameStats{FPS: fps, FrameTimeMs: ft, MemoryMB: mem, Timestamp: ts})
	}
	return stats, nil
}
