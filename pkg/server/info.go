package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"filecore/pkg/log"
)

// InfoResponse describes the running server and its storage root.
type InfoResponse struct {
	AppName       string      `json:"app_name"`
	Version       string      `json:"version"`
	Uptime        string      `json:"uptime"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Storage       StorageInfo `json:"storage"`
}

// StorageInfo represents disk usage information for the storage root.
type StorageInfo struct {
	Total          int64  `json:"total"`
	Used           int64  `json:"used"`
	Available      int64  `json:"available"`
	TotalHuman     string `json:"total_human"`
	UsedHuman      string `json:"used_human"`
	AvailableHuman string `json:"available_human"`
}

// getInfo handles the GET /info endpoint.
func (srv *FileServer) getInfo(ctx echo.Context) error {
	usage, err := srv.store.Usage()
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect storage information")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to collect storage information",
		})
	}

	uptime := int64(time.Since(srv.started).Seconds())
	return ctx.JSON(http.StatusOK, InfoResponse{
		AppName:       srv.cfg.Server.AppName,
		Version:       srv.version,
		Uptime:        formatUptime(uptime),
		UptimeSeconds: uptime,
		Storage: StorageInfo{
			Total:          usage.TotalSpace,
			Used:           usage.SpaceUsed,
			Available:      usage.SpaceAvailable,
			TotalHuman:     humanBytes(usage.TotalSpace),
			UsedHuman:      humanBytes(usage.SpaceUsed),
			AvailableHuman: humanBytes(usage.SpaceAvailable),
		},
	})
}

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// formatUptime converts seconds to human-readable format.
func formatUptime(seconds int64) string {
	duration := time.Duration(seconds) * time.Second
	const hoursInDay = 24
	const minutesInHour = 60
	days := int(duration.Hours()) / hoursInDay
	hours := int(duration.Hours()) % hoursInDay
	minutes := int(duration.Minutes()) % minutesInHour

	switch {
	case days > 0:
		return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	case hours > 0:
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	default:
		return strconv.Itoa(minutes) + "m"
	}
}
