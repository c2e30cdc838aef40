package stats

import (
	"fmt"
	"math"
	"strings"

	"github.com/wisbric/driverlog/pkg/installation"
)

// Result holds the aggregations over a filtered set of installations.
type Result struct {
	TotalInstallations      int            `json:"total_installations"`
	SuccessfulInstallations int            `json:"successful_installations"`
	FailedInstallations     int            `json:"failed_installations"`
	SuccessRate             float64        `json:"success_rate"`
	AverageTimeMinutes      float64        `json:"average_time_minutes"`
	UniqueClients           int            `json:"unique_clients"`
	ByBrand                 map[string]int `json:"by_brand"`
	TopDrivers              map[string]int `json:"top_drivers"`
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Compute aggregates the given installation rows.
func Compute(rows []installation.Row) Result {
	res := Result{
		ByBrand:    map[string]int{},
		TopDrivers: map[string]int{},
	}
	res.TotalInstallations = len(rows)

	clients := map[string]struct{}{}
	var timedSum, timedCount int64

	for _, r := range rows {
		switch r.Status {
		case "success":
			res.SuccessfulInstallations++
		case "failed":
			res.FailedInstallations++
		}

		if r.InstallationTimeSeconds > 0 {
			timedSum += r.InstallationTimeSeconds
			timedCount++
		}

		if c := strings.TrimSpace(r.ClientName); c != "" {
			clients[c] = struct{}{}
		}

		if r.DriverBrand != "" {
			res.ByBrand[r.DriverBrand]++
		}
		if key := strings.TrimSpace(fmt.Sprintf("%s %s", r.DriverBrand, r.DriverVersion)); key != "" {
			res.TopDrivers[key]++
		}
	}

	if res.TotalInstallations > 0 {
		res.SuccessRate = round2(float64(res.SuccessfulInstallations) / float64(res.TotalInstallations) * 100)
	}
	if timedCount > 0 {
		res.AverageTimeMinutes = round2(float64(timedSum) / float64(timedCount) / 60)
	}
	res.UniqueClients = len(clients)

	return res
}
