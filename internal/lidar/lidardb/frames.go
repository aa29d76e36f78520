package lidardb

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
)

// ErrFrameNotFound is returned by GetFrame for an unknown frame ID.
var ErrFrameNotFound = errors.New("frame not found")

// FrameRecord is the metadata stored for one frame.
type FrameRecord struct {
	FrameID         string    `json:"frame_id"`
	SensorID        string    `json:"sensor_id"`
	Seq             uint64    `json:"seq"`
	SpeedRaw        uint16    `json:"speed_raw"`
	SensorTimestamp uint16    `json:"sensor_timestamp"`
	PointCount      int       `json:"point_count"`
	ValidPoints     int       `json:"valid_points"`
	MinAngle        float64   `json:"min_angle"`
	MaxAngle        float64   `json:"max_angle"`
	MeanRangeMM     float64   `json:"mean_range_mm"`
	RangeStdDevMM   float64   `json:"range_stddev_mm"`
	PublishedAt     time.Time `json:"published_at"`
}

// encodePoints compresses the points using gob encoding and gzip compression.
func encodePoints(points []l2frames.Point) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(points); err != nil {
		return nil, fmt.Errorf("failed to encode points: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// decodePoints decompresses and decodes points from a gob+gzip blob.
func decodePoints(blob []byte) ([]l2frames.Point, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var points []l2frames.Point
	if err := gob.NewDecoder(gz).Decode(&points); err != nil {
		return nil, fmt.Errorf("failed to decode points: %w", err)
	}
	return points, nil
}

// rangeStats returns the mean and standard deviation of valid distances.
func rangeStats(points []l2frames.Point) (mean, stddev float64) {
	ranges := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Distance > 0 {
			ranges = append(ranges, float64(p.Distance))
		}
	}
	switch len(ranges) {
	case 0:
		return 0, 0
	case 1:
		return ranges[0], 0
	}
	return stat.MeanStdDev(ranges, nil)
}

// InsertFrame persists f. Inserting the same frame ID twice is an error.
func (ldb *LidarDB) InsertFrame(f l2frames.Frame) error {
	if f.ID == "" {
		return fmt.Errorf("frame has no id")
	}
	blob, err := encodePoints(f.Points)
	if err != nil {
		return err
	}
	minAngle, maxAngle := f.AngleRange()
	mean, stddev := rangeStats(f.Points)

	_, err = ldb.Exec(`INSERT INTO lidar_frames (
			frame_id, sensor_id, seq, speed_raw, sensor_timestamp, point_count, valid_points,
			min_angle, max_angle, published_unix_nanos, points_blob, mean_range_mm, range_stddev_mm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.SensorID, int64(f.Seq), f.SpeedRaw, f.Timestamp, len(f.Points), f.ValidPoints(),
		minAngle, maxAngle, f.PublishedAt.UnixNano(), blob, mean, stddev)
	if err != nil {
		return fmt.Errorf("insert frame %s: %w", f.ID, err)
	}
	return nil
}

const frameColumns = `frame_id, sensor_id, seq, speed_raw, sensor_timestamp, point_count, valid_points,
	min_angle, max_angle, mean_range_mm, range_stddev_mm, published_unix_nanos`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFrameRecord(row rowScanner, extra ...any) (FrameRecord, error) {
	var (
		r     FrameRecord
		seq   int64
		nanos int64
	)
	dest := []any{&r.FrameID, &r.SensorID, &seq, &r.SpeedRaw, &r.SensorTimestamp, &r.PointCount, &r.ValidPoints,
		&r.MinAngle, &r.MaxAngle, &r.MeanRangeMM, &r.RangeStdDevMM, &nanos}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return FrameRecord{}, err
	}
	r.Seq = uint64(seq)
	r.PublishedAt = time.Unix(0, nanos).UTC()
	return r, nil
}

// ListRecentFrames returns up to limit frame records for sensorID, newest
// first. An empty sensorID lists every sensor.
func (ldb *LidarDB) ListRecentFrames(sensorID string, limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ldb.Query(`SELECT `+frameColumns+` FROM lidar_frames
		WHERE (? = '' OR sensor_id = ?)
		ORDER BY published_unix_nanos DESC, seq DESC
		LIMIT ?`, sensorID, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		r, err := scanFrameRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetFrame loads a stored frame including its points.
func (ldb *LidarDB) GetFrame(id string) (FrameRecord, l2frames.Frame, error) {
	var blob []byte
	row := ldb.QueryRow(`SELECT `+frameColumns+`, points_blob FROM lidar_frames WHERE frame_id = ?`, id)
	r, err := scanFrameRecord(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return FrameRecord{}, l2frames.Frame{}, fmt.Errorf("%w: %s", ErrFrameNotFound, id)
	}
	if err != nil {
		return FrameRecord{}, l2frames.Frame{}, fmt.Errorf("get frame %s: %w", id, err)
	}
	points, err := decodePoints(blob)
	if err != nil {
		return FrameRecord{}, l2frames.Frame{}, err
	}
	return r, l2frames.Frame{
		ID:          r.FrameID,
		Seq:         r.Seq,
		SensorID:    r.SensorID,
		Points:      points,
		SpeedRaw:    r.SpeedRaw,
		Timestamp:   r.SensorTimestamp,
		PublishedAt: r.PublishedAt,
	}, nil
}

// CountFrames returns the number of stored frames for sensorID, or for all
// sensors when sensorID is empty.
func (ldb *LidarDB) CountFrames(sensorID string) (int, error) {
	var n int
	err := ldb.QueryRow(`SELECT COUNT(*) FROM lidar_frames WHERE (? = '' OR sensor_id = ?)`, sensorID, sensorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}
	return n, nil
}

// PruneFrames deletes all but the newest keep frames for sensorID and
// returns how many rows were removed.
func (ldb *LidarDB) PruneFrames(sensorID string, keep int) (int64, error) {
	res, err := ldb.Exec(`DELETE FROM lidar_frames
		WHERE sensor_id = ? AND frame_id NOT IN (
			SELECT frame_id FROM lidar_frames WHERE sensor_id = ?
			ORDER BY published_unix_nanos DESC, seq DESC LIMIT ?)`, sensorID, sensorID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune frames: %w", err)
	}
	return res.RowsAffected()
}
