// Package orientation interprets tesseract orientation and script detection
// (OSD) output. Pure functions only.
package orientation

import (
	"bufio"
	"errors"
	"strconv"
	"strings"
)

// ErrNoRotation is returned when OSD output carries no "Rotate:" line.
var ErrNoRotation = errors.New("osd output has no rotate line")

// Result is the parsed OSD report.
type Result struct {
	PageNumber  int
	Orientation int     // degrees the page is currently rotated
	Rotate      int     // clockwise degrees that make the page upright
	Confidence  float64 // orientation confidence
	Script      string
}

// Parse reads tesseract --psm 0 output:
//
//	Page number: 0
//	Orientation in degrees: 270
//	Rotate: 90
//	Orientation confidence: 2.37
//	Script: Latin
//	Script confidence: 1.81
func Parse(output string) (Result, error) {
	var res Result
	found := false

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Page number":
			res.PageNumber, _ = strconv.Atoi(value)
		case "Orientation in degrees":
			res.Orientation, _ = strconv.Atoi(value)
		case "Rotate":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Result{}, err
			}
			res.Rotate = n
			found = true
		case "Orientation confidence":
			res.Confidence, _ = strconv.ParseFloat(value, 64)
		case "Script":
			res.Script = value
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, ErrNoRotation
	}
	return res, nil
}

// Correction returns the clockwise rotation to apply for a detected angle.
// Only quarter turns are corrected; anything else leaves the page as is.
func Correction(angle int) int {
	switch angle {
	case 90, 180, 270:
		return angle
	default:
		return 0
	}
}
