// Package progress converts the external downloader's textual output
// into structured progress updates.
package progress

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// [download]  45.2% of 100.00MiB at 5.00MiB/s ETA 00:10
	fullPattern = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+~?([\d.]+)(\w+)\s+at\s+([\d.]+)(\w+)/s\s+ETA\s+(\d+:\d+)`)
	// [download] Downloading fragment 5 of 100
	fragmentPattern = regexp.MustCompile(`\[download\]\s+Downloading\s+(?:item|video|fragment)\s+(\d+)\s+of\s+(\d+)`)
	// Bare percentage fallback for varied formats
	simplePattern = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)
	// [download] 100% of ...
	completePattern = regexp.MustCompile(`\[download\]\s+100%\s+of`)
	// [download] Destination: path
	destinationPattern = regexp.MustCompile(`\[download\]\s+Destination:\s+(.+)`)
	// [Merger] or "Merging formats"
	mergePattern = regexp.MustCompile(`\[Merger\]|Merging formats`)
)

// Parser accumulates progress state across output lines. One parser per
// download process; not safe for concurrent use.
type Parser struct {
	Percent     float64
	Total       int64
	Downloaded  int64
	Speed       string
	ETA         string
	Destination string
	Status      string
	Complete    bool
}

// NewParser returns a parser in its starting state
func NewParser() *Parser {
	return &Parser{Status: "Starting..."}
}

// ParseLine inspects a single output line and updates the parser state.
// Patterns are tried in precedence order and the first match wins.
// Returns true when the line changed anything.
func (p *Parser) ParseLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if m := destinationPattern.FindStringSubmatch(line); m != nil {
		p.Destination = m[1]
		p.Status = "Downloading: " + filepath.Base(m[1])
		return true
	}

	if m := fullPattern.FindStringSubmatch(line); m != nil {
		p.Percent, _ = strconv.ParseFloat(m[1], 64)
		sizeVal, _ := strconv.ParseFloat(m[2], 64)
		speedVal, _ := strconv.ParseFloat(m[4], 64)
		p.ETA = m[6]

		p.Total = toBytes(sizeVal, m[3])
		p.Downloaded = int64(float64(p.Total) * p.Percent / 100)
		p.Speed = fmt.Sprintf("%.1f %s/s", speedVal, m[5])
		p.Status = "Downloading"
		return true
	}

	if m := fragmentPattern.FindStringSubmatch(line); m != nil {
		current, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		if total > 0 {
			p.Percent = float64(current) / float64(total) * 100
		}
		p.Status = fmt.Sprintf("Fragment %d/%d", current, total)
		return true
	}

	if m := simplePattern.FindStringSubmatch(line); m != nil {
		p.Percent, _ = strconv.ParseFloat(m[1], 64)
		p.Status = "Downloading"
		return true
	}

	if completePattern.MatchString(line) {
		p.Percent = 100
		p.Complete = true
		p.Status = "Download complete"
		return true
	}

	if mergePattern.MatchString(line) {
		p.Status = "Merging audio and video..."
		return true
	}

	return false
}

// toBytes converts a size value to bytes. Binary units (KiB/MiB/GiB)
// use 1024-based multipliers, decimal units (KB/MB/GB) 1000-based.
func toBytes(value float64, unit string) int64 {
	multipliers := map[string]float64{
		"B":   1,
		"KIB": 1 << 10, "KB": 1e3,
		"MIB": 1 << 20, "MB": 1e6,
		"GIB": 1 << 30, "GB": 1e9,
	}
	mult, ok := multipliers[strings.ToUpper(unit)]
	if !ok {
		mult = 1
	}
	return int64(value * mult)
}
