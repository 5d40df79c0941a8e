// Package store persists evaluation records from an optimization run as
// Parquet, so runs can be compared and mined after the fact. The search
// itself never reads these files back.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// EvaluationRow is one scored build.
type EvaluationRow struct {
	RunID        string  `parquet:"run_id,dict"`
	Iteration    int32   `parquet:"iteration"`
	TalentString string  `parquet:"talent_string,zstd"`
	DPS          float64 `parquet:"dps"`
	PointsSpent  int32   `parquet:"points_spent"`
	Budget       int32   `parquet:"budget"`
	Valid        bool    `parquet:"valid"`
	EvaluatedAt  int64   `parquet:"evaluated_at"`
}

// WriteEvaluationsAtomic writes rows into outDir/tmp and then atomically
// moves the file into outDir, so readers never observe a partially written
// Parquet file. It returns the final file path.
func WriteEvaluationsAtomic(outDir string, rows []EvaluationRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("evaluations_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "evaluation_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}
