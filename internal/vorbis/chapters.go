package vorbis

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/sink"
)

// Chapter is a titled time range within an audio stream.
type Chapter struct {
	Index int
	Title string
	Start time.Duration
	End   time.Duration // 0 when unknown
}

// ParseChapters extracts chapters from CHAPTER comments:
//
//	CHAPTER001=00:00:00.000
//	CHAPTER001NAME=Introduction
//	CHAPTER002=00:05:23.500
//	CHAPTER002NAME=Chapter 1: The Beginning
//
// The last chapter ends at total when total is known.
func ParseChapters(comments []string, total time.Duration) []Chapter {
	type chapterData struct {
		number    int
		timestamp string
		title     string
	}
	byNumber := make(map[int]*chapterData)
	get := func(n int) *chapterData {
		if byNumber[n] == nil {
			byNumber[n] = &chapterData{number: n}
		}
		return byNumber[n]
	}

	for _, comment := range comments {
		key, value, ok := strings.Cut(comment, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if !strings.HasPrefix(key, "CHAPTER") {
			continue
		}
		num := strings.TrimPrefix(key, "CHAPTER")
		if strings.HasSuffix(num, "NAME") {
			n, err := strconv.Atoi(strings.TrimSuffix(num, "NAME"))
			if err != nil {
				continue
			}
			get(n).title = value
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		get(n).timestamp = value
	}

	type timed struct {
		chapterData
		start time.Duration
	}
	var list []timed
	for _, c := range byNumber {
		start, err := parseTimestamp(c.timestamp)
		if err != nil {
			continue
		}
		list = append(list, timed{chapterData: *c, start: start})
	}
	if len(list) == 0 {
		return nil
	}
	slices.SortFunc(list, func(a, b timed) int {
		return cmp.Compare(a.number, b.number)
	})

	chapters := make([]Chapter, len(list))
	for i, c := range list {
		end := total
		if i < len(list)-1 {
			end = list[i+1].start
		}
		title := c.title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", c.number)
		}
		chapters[i] = Chapter{Index: i + 1, Title: title, Start: c.start, End: end}
	}
	return chapters
}

// parseTimestamp accepts HH:MM:SS.mmm, MM:SS.mmm and SS.mmm.
func parseTimestamp(ts string) (time.Duration, error) {
	parts := strings.Split(ts, ":")
	if ts == "" || len(parts) > 3 {
		return 0, errors.Errorf("invalid timestamp format: %s", ts)
	}

	var hours, minutes int
	var err error
	seconds, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, errors.Errorf("invalid seconds in timestamp: %s", ts)
	}
	if len(parts) >= 2 {
		if minutes, err = strconv.Atoi(parts[len(parts)-2]); err != nil {
			return 0, errors.Errorf("invalid minutes in timestamp: %s", ts)
		}
	}
	if len(parts) == 3 {
		if hours, err = strconv.Atoi(parts[0]); err != nil {
			return 0, errors.Errorf("invalid hours in timestamp: %s", ts)
		}
	}

	if hours < 0 || minutes < 0 || minutes >= 60 || seconds < 0 || seconds >= 60 {
		return 0, errors.Errorf("timestamp values out of range: %s", ts)
	}
	totalSeconds := float64(hours*3600+minutes*60) + seconds
	return time.Duration(totalSeconds * float64(time.Second)), nil
}

// FormatTimestamp renders d as HH:MM:SS.mmm.
func FormatTimestamp(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// WriteChapters emits chapters as a list inside a "chapters" div.
func WriteChapters(x *sink.XHTML, chapters []Chapter) error {
	if len(chapters) == 0 {
		return nil
	}
	if err := x.Start("div", sink.Attr{Name: "class", Value: "chapters"}); err != nil {
		return err
	}
	if err := x.Start("ol"); err != nil {
		return err
	}
	for _, c := range chapters {
		text := FormatTimestamp(c.Start) + " " + c.Title
		if err := x.Element("li", text); err != nil {
			return err
		}
	}
	if err := x.End("ol"); err != nil {
		return err
	}
	return x.End("div")
}
