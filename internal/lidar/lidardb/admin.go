package lidardb

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/LeurDeLis/lidar-ws/internal/httputil"
)

// AttachAdminRoutes mounts live SQL and a recent-frames listing under
// /debug/ on mux.
func (ldb *LidarDB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+ldb.path, ldb.DB, &tailsql.DBOptions{
		Label: "LiDAR frames DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("lidar/frames", "Recently recorded LiDAR frames (JSON)", http.HandlerFunc(ldb.handleRecentFrames))
	return nil
}

func (ldb *LidarDB) handleRecentFrames(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := ldb.ListRecentFrames(r.URL.Query().Get("sensor_id"), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if records == nil {
		records = []FrameRecord{}
	}
	httputil.WriteJSONOK(w, records)
}
