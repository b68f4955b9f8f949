// Package usecase holds the read-side services behind the HTTP API:
// the health cache, the system metrics collector, and the worker log
// parser feeding it.
package usecase

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"time"
)

// Worker log line layout, shared with the activity logger:
//
//	2026-01-30 10:15:23 | INFO     | worker | [HDI] Recibido job: SOL-001
const logTimeLayout = "2006-01-02 15:04:05"

var (
	receivedRe  = regexp.MustCompile(`\[([A-Z_]+)\] Recibido job: (\S+)`)
	completedRe = regexp.MustCompile(`\[([A-Z_]+)\] Job (\S+) completado exitosamente`)
	failedRe    = regexp.MustCompile(`\[([A-Z_]+)\] Job (\S+) completado con errores`)
	errorCodeRe = regexp.MustCompile(`[A-Z][A-Z_]*_\d{3}`)
)

// VendorActivity counts job outcomes for one vendor.
type VendorActivity struct {
	Received  int `json:"received"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	// SuccessRate is completed/(completed+failed), 0 when nothing
	// finished yet.
	SuccessRate float64 `json:"success_rate"`
}

// LogReport is the aggregate of one parsing pass over the worker log.
type LogReport struct {
	Vendors     map[string]VendorActivity `json:"vendors"`
	Totals      VendorActivity            `json:"totals"`
	ErrorCounts map[string]int            `json:"error_counts"`
}

// ParseWorkerLog scans the worker activity log and aggregates per
// vendor job counts and error-code frequencies for entries at or after
// since. Lines without a parseable timestamp prefix are skipped.
func ParseWorkerLog(r io.Reader, since time.Time) LogReport {
	report := LogReport{
		Vendors:     make(map[string]VendorActivity),
		ErrorCounts: make(map[string]int),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		ts, ok := lineTime(line)
		if !ok || ts.Before(since) {
			continue
		}

		switch {
		case receivedRe.MatchString(line):
			v := receivedRe.FindStringSubmatch(line)[1]
			a := report.Vendors[v]
			a.Received++
			report.Vendors[v] = a
			report.Totals.Received++
		case completedRe.MatchString(line):
			v := completedRe.FindStringSubmatch(line)[1]
			a := report.Vendors[v]
			a.Completed++
			report.Vendors[v] = a
			report.Totals.Completed++
		case failedRe.MatchString(line):
			v := failedRe.FindStringSubmatch(line)[1]
			a := report.Vendors[v]
			a.Failed++
			report.Vendors[v] = a
			report.Totals.Failed++
		}

		if strings.Contains(line, "ERROR") {
			for _, code := range errorCodeRe.FindAllString(line, -1) {
				report.ErrorCounts[code]++
			}
		}
	}

	for v, a := range report.Vendors {
		a.SuccessRate = successRate(a)
		report.Vendors[v] = a
	}
	report.Totals.SuccessRate = successRate(report.Totals)
	return report
}

func successRate(a VendorActivity) float64 {
	finished := a.Completed + a.Failed
	if finished == 0 {
		return 0
	}
	return float64(a.Completed) / float64(finished)
}

func lineTime(line string) (time.Time, bool) {
	if len(line) < len(logTimeLayout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(logTimeLayout, line[:len(logTimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
