package l2frames

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/LeurDeLis/lidar-ws/internal/security"
)

// generateExportFilename names an export after the sensor, frame sequence
// and ID. Frames without an ID fall back to the wall clock.
func generateExportFilename(f Frame) string {
	tag := f.ID
	if len(tag) > 8 {
		tag = tag[:8]
	}
	if tag == "" {
		tag = time.Now().UTC().Format("20060102T150405.000000000")
	}
	name := fmt.Sprintf("frame_%06d_%s.asc", f.Seq, security.SanitizeFilename(tag))
	if f.SensorID != "" {
		name = security.SanitizeFilename(f.SensorID) + "_" + name
	}
	return name
}

// ExportFrameASC writes f to dir as a CloudCompare ASCII point cloud with
// one "X Y Z Intensity Angle Distance" row per point. Coordinates are in
// metres with Z fixed at zero. Points without a return are skipped. The
// written path is returned.
func ExportFrameASC(f Frame, dir string) (string, error) {
	if len(f.Points) == 0 {
		return "", fmt.Errorf("no points to export")
	}
	if dir == "" {
		return "", fmt.Errorf("empty export directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	path := filepath.Join(dir, generateExportFilename(f))
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", fmt.Errorf("invalid export path: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "# Exported frame %s seq=%d speed=%d\n", f.ID, f.Seq, f.SpeedRaw)
	fmt.Fprintf(w, "# Format: X Y Z Intensity Angle Distance\n")
	written := 0
	for _, p := range f.Points {
		if p.Distance == 0 {
			continue
		}
		x, y := p.XY()
		fmt.Fprintf(w, "%.6f %.6f %.6f %d %.4f %d\n", ascCoord(x), ascCoord(y), 0.0, p.Intensity, p.Angle, p.Distance)
		written++
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	diagf("exported frame seq=%d to %s (%d points)", f.Seq, path, written)
	return path, nil
}

// ascCoord flattens values that print as zero at six decimals so points on
// an axis never read "-0.000000".
func ascCoord(v float64) float64 {
	if math.Abs(v) < 5e-7 {
		return 0
	}
	return v
}
